package diag

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry: 进程内指标注册表（与全局默认注册表隔离，避免测试重复注册）。
var Registry = prometheus.NewRegistry()

var (
	metricsOnce sync.Once
	m           *metrics
)

// 指标：
// - hghplan_op_total{comp,stage,result}
// - hghplan_error_total{comp,code}
// - hghplan_op_duration_ms{comp,stage}
// - hghplan_model_entries{source}
// - hghplan_last_success_timestamp_seconds
type metrics struct {
	opTotal     *prometheus.CounterVec
	errorTotal  *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	entries     *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
}

func get() *metrics {
	metricsOnce.Do(func() {
		f := promauto.With(Registry)
		m = &metrics{
			opTotal: f.NewCounterVec(prometheus.CounterOpts{
				Name: "hghplan_op_total",
				Help: "Total number of pipeline operations by component, stage and result",
			}, []string{"comp", "stage", "result"}),
			errorTotal: f.NewCounterVec(prometheus.CounterOpts{
				Name: "hghplan_error_total",
				Help: "Total number of classified errors",
			}, []string{"comp", "code"}),
			opDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "hghplan_op_duration_ms",
				Help:    "Duration of pipeline stages in milliseconds",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
			}, []string{"comp", "stage"}),
			entries: f.NewGaugeVec(prometheus.GaugeOpts{
				Name: "hghplan_model_entries",
				Help: "Number of entries in the last model per source",
			}, []string{"source"}),
			lastSuccess: f.NewGauge(prometheus.GaugeOpts{
				Name: "hghplan_last_success_timestamp_seconds",
				Help: "Unix time of the last run that published a model",
			}),
		}
	})
	return m
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	get().opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	get().errorTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	get().opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// SetEntries 记录某来源模型的条目数。
func SetEntries(source string, n int) {
	get().entries.WithLabelValues(source).Set(float64(n))
}

// MarkSuccess 记录最近一次成功发布的时间。
func MarkSuccess(at time.Time) {
	get().lastSuccess.Set(float64(at.Unix()))
}

// Handler 返回 /metrics 处理器。
func Handler() http.Handler {
	get()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
