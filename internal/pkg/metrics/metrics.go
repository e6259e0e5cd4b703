// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StockMetrics 汇总了库存预占相关的指标
type StockMetrics struct {
	Operations    *prometheus.CounterVec
	LatencyMS     *prometheus.HistogramVec
	SweepReleased prometheus.Counter
	SweepErrors   prometheus.Counter
	SweepLastRun  prometheus.Gauge
}

// NewStockMetrics 创建指标并注册到 reg；reg 为 nil 时注册到默认 Registerer。
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &StockMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stockhub",
			Subsystem: "stock",
			Name:      "operations_total",
			Help:      "Total number of stock reservation operations by result.",
		}, []string{"op", "result"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stockhub",
			Subsystem: "stock",
			Name:      "operation_duration_ms",
			Help:      "Stock reservation operation latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"op"}),
		SweepReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stockhub",
			Subsystem: "sweep",
			Name:      "released_orders_total",
			Help:      "Orders whose expired reservations were released by the sweeper.",
		}),
		SweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stockhub",
			Subsystem: "sweep",
			Name:      "errors_total",
			Help:      "Failed releases during expiry sweeps.",
		}),
		SweepLastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stockhub",
			Subsystem: "sweep",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed sweep pass.",
		}),
	}
	reg.MustRegister(m.Operations, m.LatencyMS, m.SweepReleased, m.SweepErrors, m.SweepLastRun)
	return m
}

// Handler 返回 /metrics 的处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOperation 记录一次库存操作的结果与耗时；m 为 nil 时不做任何事。
func (m *StockMetrics) ObserveOperation(op, result string, started time.Time) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, result).Inc()
	m.LatencyMS.WithLabelValues(op).Observe(float64(time.Since(started).Milliseconds()))
}

// ObserveSweep 记录一次清理结果
func (m *StockMetrics) ObserveSweep(released, failed int, at time.Time) {
	if m == nil {
		return
	}
	m.SweepReleased.Add(float64(released))
	m.SweepErrors.Add(float64(failed))
	m.SweepLastRun.Set(float64(at.Unix()))
}
