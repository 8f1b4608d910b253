package translate

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// FailureRecorder は翻訳バッチの失敗をメトリクスとして記録する。
type FailureRecorder interface {
	RecordTranslationBatchFailure()
}

// Batcher はタイトルのリストを均等なバッチに分割し、
// 並行に翻訳バックエンドへ送信して元の順序で再構成する。
//
// バッチ単位の失敗は隔離される: 失敗したバッチは元のタイトルのまま、
// 成功した兄弟バッチの翻訳結果はそのまま使われる。
// TranslateBatchは決してエラーを返さない。
type Batcher struct {
	backend   TitleTranslator
	batchSize int
	recorder  FailureRecorder
	logger    *slog.Logger
}

// NewBatcher はBatcherの新しいインスタンスを生成する。
// recorderはnil可。nilの場合、失敗はログにのみ記録される。
func NewBatcher(backend TitleTranslator, batchSize int, recorder FailureRecorder, logger *slog.Logger) *Batcher {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Batcher{
		backend:   backend,
		batchSize: batchSize,
		recorder:  recorder,
		logger:    logger,
	}
}

// TranslateBatch はタイトルのリストを翻訳する。
// 戻り値は常に入力と同じ長さ・同じ順序。バックエンドのエラーや
// 件数不一致はバッチ単位で吸収し、元のタイトルにフォールバックする。
// バックエンドが未設定（nil）の場合は入力をそのまま返す。
func (b *Batcher) TranslateBatch(ctx context.Context, titles []string, targetLanguage string) []string {
	if len(titles) == 0 {
		return []string{}
	}
	if b.backend == nil {
		return titles
	}

	batches := partition(titles, b.batchSize)
	results := make([][]string, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batchTitles := range batches {
		i, batchTitles := i, batchTitles
		g.Go(func() error {
			translated, err := b.backend.TranslateTitles(gctx, batchTitles, targetLanguage)
			if err != nil {
				b.recordFailure()
				b.logger.Warn("バッチ翻訳に失敗しました。元のタイトルを使用します",
					slog.String("backend", b.backend.Name()),
					slog.Int("batch_index", i),
					slog.Int("batch_size", len(batchTitles)),
					slog.String("error", err.Error()),
				)
				results[i] = batchTitles
				return nil
			}
			if len(translated) != len(batchTitles) {
				b.recordFailure()
				b.logger.Warn("バッチ翻訳の件数が一致しません。元のタイトルを使用します",
					slog.String("backend", b.backend.Name()),
					slog.Int("batch_index", i),
					slog.Int("want", len(batchTitles)),
					slog.Int("got", len(translated)),
				)
				results[i] = batchTitles
				return nil
			}
			results[i] = translated
			return nil
		})
	}

	// 各goroutineはエラーを返さないため、Waitは常にnil
	_ = g.Wait()

	// バッチ順に連結して元の順序を復元する
	out := make([]string, 0, len(titles))
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (b *Batcher) recordFailure() {
	if b.recorder != nil {
		b.recorder.RecordTranslationBatchFailure()
	}
}

// partition はリストを連続したバッチに分割する。
// バッチ数は ceil(n / batchSize)。サイズの差が最大1になるよう、
// 余りを先頭のバッチから順に1件ずつ配る（末尾だけ極端に短い
// 固定サイズ分割にはしない）。
func partition(titles []string, batchSize int) [][]string {
	n := len(titles)
	numBatches := (n + batchSize - 1) / batchSize
	if numBatches == 0 {
		return nil
	}

	base := n / numBatches
	remainder := n % numBatches

	batches := make([][]string, 0, numBatches)
	start := 0
	for i := 0; i < numBatches; i++ {
		size := base
		if i < remainder {
			size++
		}
		batches = append(batches, titles[start:start+size])
		start += size
	}
	return batches
}
