// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// メッセージ処理結果のラベル値
const (
	OutcomeSkippedSender  = "skipped_sender"
	OutcomeMalformed      = "malformed"
	OutcomeRejected       = "rejected"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeDuplicate      = "duplicate"
	OutcomeCreated        = "created"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 取り込みワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordCycleSuccess(duration time.Duration)
	RecordCycleFailure(duration time.Duration)
	RecordMessagesFetched(count int)
	RecordMessageOutcome(outcome string, count int)
	RecordLeadCreated(source string)
	RecordAlertDecision(decision string)
	RecordRawBodiesPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	messagesFetched prometheus.Counter
	messageOutcomes *prometheus.CounterVec
	leadsCreated    *prometheus.CounterVec
	alertDecisions  *prometheus.CounterVec
	rawBodiesPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greenleads_ingest_cycles_total",
			Help: "取り込みサイクルの実行数（結果別）",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "greenleads_ingest_cycle_duration_seconds",
			Help:    "取り込みサイクルの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		messagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "greenleads_messages_fetched_total",
			Help: "メールボックスから取得したメッセージの合計数",
		}),
		messageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greenleads_messages_total",
			Help: "処理結果別のメッセージ数",
		}, []string{"outcome"}),
		leadsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greenleads_leads_created_total",
			Help: "作成されたリードの合計数（取り込み元別）",
		}, []string{"source"}),
		alertDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greenleads_alerts_total",
			Help: "通知判定の結果別の件数",
		}, []string{"decision"}),
		rawBodiesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "greenleads_raw_bodies_purged_total",
			Help: "保持期間切れで削除したメール本文の合計数",
		}),
	}

	reg.MustRegister(
		c.cycles,
		c.cycleDuration,
		c.messagesFetched,
		c.messageOutcomes,
		c.leadsCreated,
		c.alertDecisions,
		c.rawBodiesPurged,
	)

	return c
}

// RecordCycleSuccess はサイクル成功を記録する。
func (c *Collector) RecordCycleSuccess(duration time.Duration) {
	c.cycles.WithLabelValues("success").Inc()
	c.cycleDuration.Observe(duration.Seconds())
}

// RecordCycleFailure はサイクル失敗を記録する。
func (c *Collector) RecordCycleFailure(duration time.Duration) {
	c.cycles.WithLabelValues("failure").Inc()
	c.cycleDuration.Observe(duration.Seconds())
}

// RecordMessagesFetched は取得メッセージ数を記録する。
func (c *Collector) RecordMessagesFetched(count int) {
	c.messagesFetched.Add(float64(count))
}

// RecordMessageOutcome は処理結果別のメッセージ数を記録する。0件は記録しない。
func (c *Collector) RecordMessageOutcome(outcome string, count int) {
	if count <= 0 {
		return
	}
	c.messageOutcomes.WithLabelValues(outcome).Add(float64(count))
}

// RecordLeadCreated はリード作成を記録する。
func (c *Collector) RecordLeadCreated(source string) {
	c.leadsCreated.WithLabelValues(source).Inc()
}

// RecordAlertDecision は通知判定の結果を記録する。
func (c *Collector) RecordAlertDecision(decision string) {
	c.alertDecisions.WithLabelValues(decision).Inc()
}

// RecordRawBodiesPurged は削除したメール本文の件数を記録する。
func (c *Collector) RecordRawBodiesPurged(count int64) {
	c.rawBodiesPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカーのメトリクスサーバーで使用する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

var _ MetricsCollector = (*Collector)(nil)
