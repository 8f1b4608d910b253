package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// gatherCounter はレジストリから指定メトリクスのカウンタ値の合計を取り出す。
func gatherCounter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	t.Fatalf("%s metric not found", name)
	return 0
}

// TestRecordFetchSuccess_IncrementsCounter はソース別のフェッチ成功カウンタが増加することを検証する。
func TestRecordFetchSuccess_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchSuccess("google_news")
	c.RecordFetchSuccess("google_news")
	c.RecordFetchSuccess("cinii")

	if got := gatherCounter(t, reg, "newsdispatcher_fetch_success_total"); got != 3 {
		t.Errorf("fetch_success_total = %v, want 3", got)
	}
}

// TestRecordFetchFailure_IncrementsCounter はフェッチ失敗カウンタが増加することを検証する。
func TestRecordFetchFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchFailure("arxiv")

	if got := gatherCounter(t, reg, "newsdispatcher_fetch_fail_total"); got != 1 {
		t.Errorf("fetch_fail_total = %v, want 1", got)
	}
}

// TestRecordArticlesDelivered_AddsCount は配信記事数が加算されることを検証する。
func TestRecordArticlesDelivered_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordArticlesDelivered(5)
	c.RecordArticlesDelivered(3)

	if got := gatherCounter(t, reg, "newsdispatcher_articles_delivered_total"); got != 8 {
		t.Errorf("articles_delivered_total = %v, want 8", got)
	}
}

// TestRecordTranslationBatchFailure_IncrementsCounter は翻訳失敗カウンタが増加することを検証する。
func TestRecordTranslationBatchFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTranslationBatchFailure()
	c.RecordTranslationBatchFailure()

	if got := gatherCounter(t, reg, "newsdispatcher_translation_batch_fail_total"); got != 2 {
		t.Errorf("translation_batch_fail_total = %v, want 2", got)
	}
}

// TestRecordMailCounters はメール送信カウンタが増加することを検証する。
func TestRecordMailCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMailSent()
	c.RecordMailFailure()

	if got := gatherCounter(t, reg, "newsdispatcher_mail_sent_total"); got != 1 {
		t.Errorf("mail_sent_total = %v, want 1", got)
	}
	if got := gatherCounter(t, reg, "newsdispatcher_mail_fail_total"); got != 1 {
		t.Errorf("mail_fail_total = %v, want 1", got)
	}
}

// TestRecordFetchLatency_ObservesHistogram はレイテンシヒストグラムが記録されることを検証する。
func TestRecordFetchLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchLatency("google_news", 250*time.Millisecond)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "newsdispatcher_fetch_latency_seconds" {
			found = true
			if got := mf.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
				t.Errorf("sample count = %d, want 1", got)
			}
		}
	}
	if !found {
		t.Error("newsdispatcher_fetch_latency_seconds metric not found")
	}
}

// TestHandler_ServesMetrics は/metricsハンドラーがメトリクスを出力することを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordFetchSuccess("google_news")

	server := httptest.NewServer(Handler(reg))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("metrics endpoint request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "newsdispatcher_fetch_success_total") {
		t.Error("response should contain newsdispatcher_fetch_success_total")
	}
}
