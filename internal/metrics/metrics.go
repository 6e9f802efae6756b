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
// ミドルウェア、Session Guard、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method string, status int, duration time.Duration)
	RecordCSRFRejection(reason string)
	RecordProfileRepair(outcome string)
	RecordPhotoUpdate(path string)
	RecordWebhookEvent(eventType, outcome string)
	RecordPDFRender(templateID, renderer string, duration time.Duration, err error)
	RecordCleanup(target string, deleted int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests   *prometheus.CounterVec
	httpLatency    prometheus.Histogram
	csrfRejections *prometheus.CounterVec
	profileRepairs *prometheus.CounterVec
	photoUpdates   *prometheus.CounterVec
	webhookEvents  *prometheus.CounterVec
	pdfRenders     *prometheus.CounterVec
	pdfLatency     *prometheus.HistogramVec
	cleanupDeleted *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvbuilder_http_requests_total",
			Help: "HTTPメソッドとステータスコード別のリクエスト数",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cvbuilder_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		csrfRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvbuilder_csrf_rejections_total",
			Help: "CSRF検証で拒否したリクエスト数",
		}, []string{"reason"}),
		profileRepairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvbuilder_profile_repairs_total",
			Help: "Session Guardによるプロフィール自己修復の結果別件数",
		}, []string{"outcome"}),
		photoUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvbuilder_photo_updates_total",
			Help: "プロフィール写真更新の経路別件数",
		}, []string{"path"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvbuilder_webhook_events_total",
			Help: "決済Webhookイベントの種別と処理結果別件数",
		}, []string{"type", "outcome"}),
		pdfRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvbuilder_pdf_renders_total",
			Help: "PDF生成のテンプレートと結果別件数",
		}, []string{"template", "renderer", "result"}),
		pdfLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cvbuilder_pdf_render_duration_seconds",
			Help:    "PDF生成の処理時間（秒）",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"renderer"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cvbuilder_cleanup_deleted_total",
			Help: "クリーンアップジョブが削除した行数",
		}, []string{"target"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.csrfRejections,
		c.profileRepairs,
		c.photoUpdates,
		c.webhookEvents,
		c.pdfRenders,
		c.pdfLatency,
		c.cleanupDeleted,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// RecordCSRFRejection はCSRF拒否を記録する。
func (c *Collector) RecordCSRFRejection(reason string) {
	c.csrfRejections.WithLabelValues(reason).Inc()
}

// RecordProfileRepair はプロフィール自己修復の結果を記録する。
// outcome: created, race_refetched, failed
func (c *Collector) RecordProfileRepair(outcome string) {
	c.profileRepairs.WithLabelValues(outcome).Inc()
}

// RecordPhotoUpdate は写真更新の経路を記録する。
// path: scoped, privileged, failed
func (c *Collector) RecordPhotoUpdate(path string) {
	c.photoUpdates.WithLabelValues(path).Inc()
}

// RecordWebhookEvent はWebhookイベントの処理結果を記録する。
func (c *Collector) RecordWebhookEvent(eventType, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordPDFRender はPDF生成の結果と処理時間を記録する。
func (c *Collector) RecordPDFRender(templateID, renderer string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.pdfRenders.WithLabelValues(templateID, renderer, result).Inc()
	c.pdfLatency.WithLabelValues(renderer).Observe(duration.Seconds())
}

// RecordCleanup はクリーンアップで削除した行数を記録する。
func (c *Collector) RecordCleanup(target string, deleted int64) {
	c.cleanupDeleted.WithLabelValues(target).Add(float64(deleted))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordHTTPRequest(string, int, time.Duration) {}
func (Nop) RecordCSRFRejection(string) {}
func (Nop) RecordProfileRepair(string) {}
func (Nop) RecordPhotoUpdate(string) {}
func (Nop) RecordWebhookEvent(string, string) {}
func (Nop) RecordPDFRender(string, string, time.Duration, error) {}
func (Nop) RecordCleanup(string, int64) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// メトリクス専用ポートで公開する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
