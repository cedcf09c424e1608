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
// 貸出サービス・延滞スイープ・HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordCheckout()
	RecordCheckoutRejected(code string)
	RecordReturn()
	RecordReturnRejected(code string)
	RecordLoansExpired(count int)
	RecordSweepDuration(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	checkouts        prometheus.Counter
	checkoutRejected *prometheus.CounterVec
	returns          prometheus.Counter
	returnRejected   *prometheus.CounterVec
	loansExpired     prometheus.Counter
	sweepDuration    prometheus.Histogram
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checkouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_checkouts_total",
			Help: "成立した貸出の合計数",
		}),
		checkoutRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biblioteca_checkout_rejected_total",
			Help: "拒否された貸出のエラーコード別の合計数",
		}, []string{"code"}),
		returns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_returns_total",
			Help: "返却の合計数",
		}),
		returnRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biblioteca_return_rejected_total",
			Help: "拒否された返却のエラーコード別の合計数",
		}, []string{"code"}),
		loansExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "biblioteca_loans_expired_total",
			Help: "延滞スイープでEXPIREDに遷移した貸出の合計数",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "biblioteca_overdue_sweep_duration_seconds",
			Help:    "延滞スイープ1回あたりの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "biblioteca_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.checkouts,
		c.checkoutRejected,
		c.returns,
		c.returnRejected,
		c.loansExpired,
		c.sweepDuration,
		c.httpStatus,
	)

	return c
}

// RecordCheckout は貸出の成立を記録する。
func (c *Collector) RecordCheckout() {
	c.checkouts.Inc()
}

// RecordCheckoutRejected は貸出の拒否をエラーコード別に記録する。
func (c *Collector) RecordCheckoutRejected(code string) {
	c.checkoutRejected.WithLabelValues(code).Inc()
}

// RecordReturn は返却を記録する。
func (c *Collector) RecordReturn() {
	c.returns.Inc()
}

// RecordReturnRejected は返却の拒否をエラーコード別に記録する。
func (c *Collector) RecordReturnRejected(code string) {
	c.returnRejected.WithLabelValues(code).Inc()
}

// RecordLoansExpired はスイープでEXPIREDに遷移した件数を記録する。
func (c *Collector) RecordLoansExpired(count int) {
	c.loansExpired.Add(float64(count))
}

// RecordSweepDuration はスイープの所要時間を記録する。
func (c *Collector) RecordSweepDuration(duration time.Duration) {
	c.sweepDuration.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
