package translate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"testing"
)

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// mockTranslator はテスト用の翻訳バックエンド。
// failOnは失敗させるバッチの先頭タイトル。
type mockTranslator struct {
	mu     sync.Mutex
	calls  [][]string
	failOn map[string]bool
	// mismatch がtrueの場合、件数の合わない結果を返す
	mismatch bool
}

func (m *mockTranslator) TranslateTitles(ctx context.Context, titles []string, targetLanguage string) ([]string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, titles)
	m.mu.Unlock()

	if len(titles) > 0 && m.failOn[titles[0]] {
		return nil, errors.New("backend unavailable")
	}
	if m.mismatch {
		return []string{"only-one"}, nil
	}

	out := make([]string, len(titles))
	for i, t := range titles {
		out[i] = "t(" + t + ")"
	}
	return out, nil
}

func (m *mockTranslator) Name() string { return "mock" }

// mockFailureRecorder はテスト用のFailureRecorderモック。
type mockFailureRecorder struct {
	mu       sync.Mutex
	failures int
}

func (m *mockFailureRecorder) RecordTranslationBatchFailure() {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

func (m *mockFailureRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

func TestBatcher_TranslateBatch_PreservesOrder(t *testing.T) {
	backend := &mockTranslator{}
	b := NewBatcher(backend, 2, nil, newTestLogger())

	got := b.TranslateBatch(context.Background(), []string{"a", "b", "c", "d", "e"}, "Japanese")
	want := []string{"t(a)", "t(b)", "t(c)", "t(d)", "t(e)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TranslateBatch() = %v, want %v", got, want)
	}
}

func TestBatcher_TranslateBatch_FailedBatchFallsBackInPlace(t *testing.T) {
	// batchSize=2、5件 → バッチは [a,b] [c,d] [e]。
	// 中間バッチ [c,d] だけが失敗する。
	backend := &mockTranslator{failOn: map[string]bool{"c": true}}
	recorder := &mockFailureRecorder{}
	b := NewBatcher(backend, 2, recorder, newTestLogger())

	got := b.TranslateBatch(context.Background(), []string{"a", "b", "c", "d", "e"}, "Japanese")
	want := []string{"t(a)", "t(b)", "c", "d", "t(e)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TranslateBatch() = %v, want %v", got, want)
	}

	if recorder.count() != 1 {
		t.Errorf("翻訳バッチ失敗の記録回数 = %d, want 1", recorder.count())
	}
}

// 件数不一致のフォールバックも失敗としてメトリクスに記録される。
func TestBatcher_TranslateBatch_MismatchRecordsFailure(t *testing.T) {
	backend := &mockTranslator{mismatch: true}
	recorder := &mockFailureRecorder{}
	b := NewBatcher(backend, 10, recorder, newTestLogger())

	b.TranslateBatch(context.Background(), []string{"a", "b", "c"}, "Japanese")
	if recorder.count() != 1 {
		t.Errorf("翻訳バッチ失敗の記録回数 = %d, want 1", recorder.count())
	}
}

// recorder未設定（nil）でも失敗フォールバックは動作する。
func TestBatcher_TranslateBatch_NilRecorderDoesNotPanic(t *testing.T) {
	backend := &mockTranslator{failOn: map[string]bool{"a": true}}
	b := NewBatcher(backend, 10, nil, newTestLogger())

	input := []string{"a", "b"}
	got := b.TranslateBatch(context.Background(), input, "Japanese")
	if !reflect.DeepEqual(got, input) {
		t.Errorf("失敗時は元のタイトルを返すべき: got %v", got)
	}
}

func TestBatcher_TranslateBatch_LengthMismatchFallsBack(t *testing.T) {
	backend := &mockTranslator{mismatch: true}
	b := NewBatcher(backend, 10, nil, newTestLogger())

	input := []string{"a", "b", "c"}
	got := b.TranslateBatch(context.Background(), input, "Japanese")
	if !reflect.DeepEqual(got, input) {
		t.Errorf("件数不一致時は元のタイトルを返すべき: got %v", got)
	}
}

func TestBatcher_TranslateBatch_BalancedPartition(t *testing.T) {
	// 7件 batchSize=3 → ceil(7/3)=3バッチ。均等分割で [3,2,2] になる
	// （固定サイズ分割の [3,3,1] ではない）。
	backend := &mockTranslator{}
	b := NewBatcher(backend, 3, nil, newTestLogger())

	input := []string{"a", "b", "c", "d", "e", "f", "g"}
	got := b.TranslateBatch(context.Background(), input, "Japanese")

	want := []string{"t(a)", "t(b)", "t(c)", "t(d)", "t(e)", "t(f)", "t(g)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TranslateBatch() = %v, want %v", got, want)
	}

	sizes := make(map[int]int)
	for _, call := range backend.calls {
		sizes[len(call)]++
	}
	if sizes[3] != 1 || sizes[2] != 2 {
		t.Errorf("バッチサイズの分布 = %v, want {3:1, 2:2}", sizes)
	}
}

func TestBatcher_TranslateBatch_EmptyInput(t *testing.T) {
	backend := &mockTranslator{}
	b := NewBatcher(backend, 10, nil, newTestLogger())

	got := b.TranslateBatch(context.Background(), nil, "Japanese")
	if len(got) != 0 {
		t.Errorf("空入力では空リストを返すべき: got %v", got)
	}
	if len(backend.calls) != 0 {
		t.Error("空入力ではバックエンドを呼び出すべきではない")
	}
}

func TestBatcher_TranslateBatch_NilBackendReturnsOriginals(t *testing.T) {
	b := NewBatcher(nil, 10, nil, newTestLogger())

	input := []string{"a", "b"}
	got := b.TranslateBatch(context.Background(), input, "Japanese")
	if !reflect.DeepEqual(got, input) {
		t.Errorf("バックエンド未設定時は元のタイトルを返すべき: got %v", got)
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		batchSize int
		wantSizes []int
	}{
		{name: "割り切れる場合", n: 6, batchSize: 3, wantSizes: []int{3, 3}},
		{name: "余りは先頭バッチに配る", n: 7, batchSize: 3, wantSizes: []int{3, 2, 2}},
		{name: "1バッチに収まる場合", n: 2, batchSize: 10, wantSizes: []int{2}},
		{name: "バッチサイズ1", n: 3, batchSize: 1, wantSizes: []int{1, 1, 1}},
		{name: "5件をサイズ2で", n: 5, batchSize: 2, wantSizes: []int{2, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			titles := make([]string, tt.n)
			for i := range titles {
				titles[i] = string(rune('a' + i))
			}

			batches := partition(titles, tt.batchSize)
			var sizes []int
			var flat []string
			for _, b := range batches {
				sizes = append(sizes, len(b))
				flat = append(flat, b...)
			}

			if !reflect.DeepEqual(sizes, tt.wantSizes) {
				t.Errorf("バッチサイズ = %v, want %v", sizes, tt.wantSizes)
			}
			if !reflect.DeepEqual(flat, titles) {
				t.Errorf("連結結果が元のリストと一致しない: %v", flat)
			}
		})
	}
}
