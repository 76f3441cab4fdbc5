package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coin-rebalancer/internal/execution"
	"coin-rebalancer/internal/ingest"
	"coin-rebalancer/internal/rebalance"
)

const namespace = "rebalancer"

// Registry 持有全部 Prometheus 指标，使用独立注册表避免污染全局默认注册表。
type Registry struct {
	reg *prometheus.Registry

	Plans        prometheus.Counter
	PlannedTrade *prometheus.CounterVec
	Orders       *prometheus.CounterVec
	IngestedRows *prometheus.CounterVec
	PipelineRuns *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec
	TotalValue   prometheus.Gauge
}

// New 创建并注册指标。
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Plans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "调仓计划生成次数",
		}),
		PlannedTrade: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planned_trades_total",
			Help:      "计划中的交易笔数，按方向统计",
		}, []string{"side"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "订单执行结果，按方向与状态统计",
		}, []string{"side", "status"}),
		IngestedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_rows_total",
			Help:      "写入数据库的K线行数",
		}, []string{"coin"}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "行情入库流水线执行次数",
		}, []string{"result"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "任务耗时",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"job", "result"}),
		TotalValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_value_reserve",
			Help:      "以储备币计价的组合总价值",
		}),
	}

	r.reg.MustRegister(
		r.Plans,
		r.PlannedTrade,
		r.Orders,
		r.IngestedRows,
		r.PipelineRuns,
		r.JobDuration,
		r.TotalValue,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Gatherer 返回底层注册表。
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler 返回 /metrics 处理器。
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObservePlan 记录一次调仓计划。
func (r *Registry) ObservePlan(plan rebalance.TradePlan) {
	r.Plans.Inc()
	r.TotalValue.Set(plan.TotalValue)
	for _, entry := range plan.Trades() {
		side := string(execution.SideOf(entry.TradeQuantity))
		r.PlannedTrade.WithLabelValues(side).Inc()
	}
}

// ObserveReport 按方向与状态累计订单结果。
func (r *Registry) ObserveReport(report execution.Report) {
	for _, o := range report.Outcomes {
		r.Orders.WithLabelValues(string(o.Side), string(o.Status)).Inc()
	}
}

// ObserveIngestion 记录一次入库流水线。
func (r *Registry) ObserveIngestion(summary ingest.Summary, err error) {
	for coin, rows := range summary.PerCoin {
		r.IngestedRows.WithLabelValues(coin).Add(float64(rows))
	}
	r.PipelineRuns.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveJob 记录任务耗时。
func (r *Registry) ObserveJob(job string, elapsed time.Duration, err error) {
	r.JobDuration.WithLabelValues(job, resultLabel(err)).Observe(elapsed.Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
