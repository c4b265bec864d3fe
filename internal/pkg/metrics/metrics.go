package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// ホールド要求の結果（result: held, partial, conflict, rejected, error）
	HoldRequestsTotal *prometheus.CounterVec

	// 座席単位のホールド結果（outcome: held, already_held, held_by_other, sold, blocked, disabled, not_found）
	SeatHoldOutcomes *prometheus.CounterVec

	// 購入確定の結果（result: success, replay, rejected, in_progress, error）
	ConfirmationsTotal *prometheus.CounterVec

	// スイーパーが回収した期限切れホールド数
	SweptHoldsTotal prometheus.Counter

	// 解放された座席数
	ReleasedSeatsTotal prometheus.Counter
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HoldRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_hold_requests_total",
				Help: "Total number of seat hold requests by result",
			},
			[]string{"result"},
		),
		SeatHoldOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_hold_outcomes_total",
				Help: "Per-seat outcome of hold attempts",
			},
			[]string{"outcome"},
		),
		ConfirmationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_confirmations_total",
				Help: "Total number of purchase confirmations by result",
			},
			[]string{"result"},
		),
		SweptHoldsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "seat_holds_swept_total",
				Help: "Expired holds reclaimed by the sweeper",
			},
		),
		ReleasedSeatsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "seat_holds_released_total",
				Help: "Seats released explicitly by their holder",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HoldRequestsTotal,
		m.SeatHoldOutcomes,
		m.ConfirmationsTotal,
		m.SweptHoldsTotal,
		m.ReleasedSeatsTotal,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}

// IncHold はホールド結果を記録する（nil 安全）
func (m *Metrics) IncHold(result string) {
	if m == nil {
		return
	}
	m.HoldRequestsTotal.WithLabelValues(result).Inc()
}

// IncSeatOutcome は座席単位の結果を記録する（nil 安全）
func (m *Metrics) IncSeatOutcome(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SeatHoldOutcomes.WithLabelValues(outcome).Add(float64(n))
}

// IncConfirmation は購入確定の結果を記録する（nil 安全）
func (m *Metrics) IncConfirmation(result string) {
	if m == nil {
		return
	}
	m.ConfirmationsTotal.WithLabelValues(result).Inc()
}

// AddSwept は回収したホールド数を加算する（nil 安全）
func (m *Metrics) AddSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SweptHoldsTotal.Add(float64(n))
}

// AddReleased は解放数を加算する（nil 安全）
func (m *Metrics) AddReleased(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReleasedSeatsTotal.Add(float64(n))
}
