// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 配信ジョブやサービス層から利用する。
type MetricsCollector interface {
	RecordFetchSuccess(source string)
	RecordFetchFailure(source string)
	RecordFetchLatency(source string, duration time.Duration)
	RecordArticlesDelivered(count int)
	RecordTranslationBatchFailure()
	RecordMailSent()
	RecordMailFailure()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess      *prometheus.CounterVec
	fetchFail         *prometheus.CounterVec
	fetchLatency      *prometheus.HistogramVec
	articlesDelivered prometheus.Counter
	translationFail   prometheus.Counter
	mailSent          prometheus.Counter
	mailFail          prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdispatcher_fetch_success_total",
			Help: "ソース別のフェッチ成功の合計数",
		}, []string{"source"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdispatcher_fetch_fail_total",
			Help: "ソース別のフェッチ失敗の合計数",
		}, []string{"source"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsdispatcher_fetch_latency_seconds",
			Help:    "ソース別のフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		articlesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdispatcher_articles_delivered_total",
			Help: "配信された記事の合計数",
		}),
		translationFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdispatcher_translation_batch_fail_total",
			Help: "翻訳バッチ失敗の合計数",
		}),
		mailSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdispatcher_mail_sent_total",
			Help: "送信されたダイジェストメールの合計数",
		}),
		mailFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "newsdispatcher_mail_fail_total",
			Help: "送信に失敗したダイジェストメールの合計数",
		}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.fetchLatency,
		c.articlesDelivered,
		c.translationFail,
		c.mailSent,
		c.mailFail,
	)

	return c
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(source string) {
	c.fetchSuccess.WithLabelValues(source).Inc()
}

// RecordFetchFailure はフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure(source string) {
	c.fetchFail.WithLabelValues(source).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(source string, duration time.Duration) {
	c.fetchLatency.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordArticlesDelivered は配信された記事数を記録する。
func (c *Collector) RecordArticlesDelivered(count int) {
	c.articlesDelivered.Add(float64(count))
}

// RecordTranslationBatchFailure は翻訳バッチの失敗を記録する。
func (c *Collector) RecordTranslationBatchFailure() {
	c.translationFail.Inc()
}

// RecordMailSent はダイジェストメールの送信成功を記録する。
func (c *Collector) RecordMailSent() {
	c.mailSent.Inc()
}

// RecordMailFailure はダイジェストメールの送信失敗を記録する。
func (c *Collector) RecordMailFailure() {
	c.mailFail.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
