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
// サービス層・ミドルウェア・ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method string, statusCode int, duration time.Duration)
	RecordInvitation(refreshed bool)
	RecordInvitationResolved(status string)
	RecordTripWrite(op string)
	RecordNotificationFailure()
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests        *prometheus.CounterVec
	httpDuration        prometheus.Histogram
	invitations         *prometheus.CounterVec
	invitationsResolved *prometheus.CounterVec
	tripWrites          *prometheus.CounterVec
	notificationsFailed prometheus.Counter
	sessionsPurged      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripshare_http_requests_total",
			Help: "メソッド・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripshare_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		invitations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripshare_invitations_total",
			Help: "作成・更新された招待の数",
		}, []string{"result"}),
		invitationsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripshare_invitations_resolved_total",
			Help: "承諾・辞退された招待の数",
		}, []string{"status"}),
		tripWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripshare_trip_writes_total",
			Help: "操作別の旅行ドキュメント書き込み数",
		}, []string{"op"}),
		notificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripshare_notifications_failed_total",
			Help: "送信に失敗した通知の合計数",
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripshare_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.invitations,
		c.invitationsResolved,
		c.tripWrites,
		c.notificationsFailed,
		c.sessionsPurged,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストのステータスと処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpDuration.Observe(duration.Seconds())
}

// RecordInvitation は招待の作成または再招待による更新を記録する。
func (c *Collector) RecordInvitation(refreshed bool) {
	result := "created"
	if refreshed {
		result = "refreshed"
	}
	c.invitations.WithLabelValues(result).Inc()
}

// RecordInvitationResolved は招待の承諾・辞退を記録する。
func (c *Collector) RecordInvitationResolved(status string) {
	c.invitationsResolved.WithLabelValues(status).Inc()
}

// RecordTripWrite は旅行ドキュメントの書き込み（create, replace, delete）を記録する。
func (c *Collector) RecordTripWrite(op string) {
	c.tripWrites.WithLabelValues(op).Inc()
}

// RecordNotificationFailure は通知送信の失敗を記録する。
func (c *Collector) RecordNotificationFailure() {
	c.notificationsFailed.Inc()
}

// RecordSessionsPurged は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type NopCollector struct{}

func (NopCollector) RecordHTTPRequest(string, int, time.Duration) {}
func (NopCollector) RecordInvitation(bool)                        {}
func (NopCollector) RecordInvitationResolved(string)              {}
func (NopCollector) RecordTripWrite(string)                       {}
func (NopCollector) RecordNotificationFailure()                   {}
func (NopCollector) RecordSessionsPurged(int64)                   {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
