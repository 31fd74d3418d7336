// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 収集サービスやハンドラー層から利用する。
type MetricsCollector interface {
	RecordCollectSuccess(videoID string)
	RecordCollectFailure(videoID string, reason string)
	RecordPagesFetched(count int)
	RecordUpstreamStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordCommentsSaved(count int)
	RecordCommentsSkipped(count int)
	RecordCommentsDropped(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	collectSuccess  prometheus.Counter
	collectFail     prometheus.Counter
	pagesFetched    prometheus.Counter
	upstreamStatus  *prometheus.CounterVec
	fetchLatency    prometheus.Histogram
	commentsSaved   prometheus.Counter
	commentsSkipped prometheus.Counter
	commentsDropped prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		collectSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commentman_collect_success_total",
			Help: "コメント収集成功の合計数",
		}),
		collectFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commentman_collect_fail_total",
			Help: "コメント収集失敗の合計数",
		}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commentman_pages_fetched_total",
			Help: "上流APIから取得したページの合計数",
		}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commentman_upstream_status_total",
			Help: "上流APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "commentman_fetch_latency_seconds",
			Help:    "上流APIフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		commentsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commentman_comments_saved_total",
			Help: "保存されたコメントの合計数",
		}),
		commentsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commentman_comments_skipped_total",
			Help: "重複によりスキップされたコメントの合計数",
		}),
		commentsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "commentman_comments_dropped_total",
			Help: "必須フィールド欠落により除外されたコメントの合計数",
		}),
	}

	reg.MustRegister(
		c.collectSuccess,
		c.collectFail,
		c.pagesFetched,
		c.upstreamStatus,
		c.fetchLatency,
		c.commentsSaved,
		c.commentsSkipped,
		c.commentsDropped,
	)

	return c
}

// RecordCollectSuccess は収集成功を記録する。
func (c *Collector) RecordCollectSuccess(videoID string) {
	c.collectSuccess.Inc()
}

// RecordCollectFailure は収集失敗を記録する。
func (c *Collector) RecordCollectFailure(videoID string, reason string) {
	c.collectFail.Inc()
}

// RecordPagesFetched は取得したページ数を記録する。
func (c *Collector) RecordPagesFetched(count int) {
	c.pagesFetched.Add(float64(count))
}

// RecordUpstreamStatus は上流APIのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordCommentsSaved は保存されたコメント数を記録する。
func (c *Collector) RecordCommentsSaved(count int) {
	c.commentsSaved.Add(float64(count))
}

// RecordCommentsSkipped は重複スキップされたコメント数を記録する。
func (c *Collector) RecordCommentsSkipped(count int) {
	c.commentsSkipped.Add(float64(count))
}

// RecordCommentsDropped は除外されたコメント数を記録する。
func (c *Collector) RecordCommentsDropped(count int) {
	c.commentsDropped.Add(float64(count))
}

// Noop はメトリクスを記録しないMetricsCollector実装。
// メトリクスが不要なテストで使用する。
type Noop struct{}

func (Noop) RecordCollectSuccess(videoID string)                {}
func (Noop) RecordCollectFailure(videoID string, reason string) {}
func (Noop) RecordPagesFetched(count int)                       {}
func (Noop) RecordUpstreamStatus(statusCode int)                {}
func (Noop) RecordFetchLatency(duration time.Duration)          {}
func (Noop) RecordCommentsSaved(count int)                      {}
func (Noop) RecordCommentsSkipped(count int)                    {}
func (Noop) RecordCommentsDropped(count int)                    {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
