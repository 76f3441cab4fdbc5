package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"coin-rebalancer/internal/execution"
	"coin-rebalancer/internal/ingest"
	"coin-rebalancer/internal/metrics"
	"coin-rebalancer/internal/portfolio"
	"coin-rebalancer/internal/rebalance"
)

type holdingsFetcher interface {
	FetchHoldings(ctx context.Context, reserve string, extra []string) ([]portfolio.Holding, error)
}

// eventRecorder 由 monitor.Service 实现。
type eventRecorder interface {
	RecordHoldings(ctx context.Context, reserve string, holdings []portfolio.Holding)
	RecordPlan(ctx context.Context, weights map[string]float64, params rebalance.Params, plan rebalance.TradePlan)
	RecordExecution(ctx context.Context, report execution.Report)
	RecordIngestion(ctx context.Context, summary ingest.Summary)
	RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{})
}

type nopRecorder struct{}

func (nopRecorder) RecordHoldings(context.Context, string, []portfolio.Holding) {}

func (nopRecorder) RecordPlan(context.Context, map[string]float64, rebalance.Params, rebalance.TradePlan) {}

func (nopRecorder) RecordExecution(context.Context, execution.Report) {}

func (nopRecorder) RecordIngestion(context.Context, ingest.Summary) {}

func (nopRecorder) RecordError(context.Context, string, error, map[string]interface{}) {}

// Rebalancer 串联持仓查询、计划生成与下单。
type Rebalancer struct {
	holdings holdingsFetcher
	trader   execution.Trader
	events   eventRecorder
	metrics  *metrics.Registry
	weights  map[string]float64
	params   rebalance.Params
	logger   *zap.Logger
}

// NewRebalancer 创建调仓服务，events 与 reg 可为 nil。
func NewRebalancer(
	holdings holdingsFetcher,
	trader execution.Trader,
	weights map[string]float64,
	params rebalance.Params,
	events eventRecorder,
	reg *metrics.Registry,
	logger *zap.Logger,
) *Rebalancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = nopRecorder{}
	}
	return &Rebalancer{
		holdings: holdings,
		trader:   trader,
		events:   events,
		metrics:  reg,
		weights:  weights,
		params:   params,
		logger:   logger,
	}
}

// Positions 返回当前持仓，按价值降序。
func (r *Rebalancer) Positions(ctx context.Context) ([]portfolio.Holding, error) {
	holdings, err := r.holdings.FetchHoldings(ctx, r.params.Reserve, tickers(r.weights))
	if err != nil {
		r.events.RecordError(ctx, "获取持仓失败", err, nil)
		return nil, fmt.Errorf("app: 获取持仓失败: %w", err)
	}
	r.events.RecordHoldings(ctx, r.params.Reserve, holdings)
	return portfolio.SortByValue(holdings), nil
}

// Plan 查询持仓并生成计划，不下单。
func (r *Rebalancer) Plan(ctx context.Context) (rebalance.TradePlan, error) {
	return r.plan(ctx, r.weights, r.params)
}

// Rebalance 按目标权重调仓。
func (r *Rebalancer) Rebalance(ctx context.Context) (execution.Report, error) {
	return r.run(ctx, "rebalance", r.weights, r.params)
}

// Liquidate 将全部资产换回储备币。
func (r *Rebalancer) Liquidate(ctx context.Context) (execution.Report, error) {
	reserve := r.params.Reserve
	return r.run(ctx, "liquidate", rebalance.LiquidationWeights(reserve), rebalance.LiquidationParams(reserve))
}

func (r *Rebalancer) run(ctx context.Context, job string, weights map[string]float64, params rebalance.Params) (execution.Report, error) {
	started := time.Now()
	report, err := r.execute(ctx, weights, params)
	if r.metrics != nil {
		r.metrics.ObserveJob(job, time.Since(started), err)
	}
	return report, err
}

func (r *Rebalancer) execute(ctx context.Context, weights map[string]float64, params rebalance.Params) (execution.Report, error) {
	plan, err := r.plan(ctx, weights, params)
	if err != nil {
		return execution.Report{}, err
	}

	if len(plan.Trades()) == 0 {
		r.logger.Info("组合已接近目标，无需调仓", zap.Float64("total_value", plan.TotalValue))
		return execution.Report{ExecutedAt: time.Now().UTC()}, nil
	}

	report := r.trader.Execute(ctx, plan)
	r.events.RecordExecution(ctx, report)
	if r.metrics != nil {
		r.metrics.ObserveReport(report)
	}

	r.logger.Info("调仓执行完成",
		zap.Bool("dry_run", report.DryRun),
		zap.Int("submitted", report.Count(execution.StatusSubmitted)),
		zap.Int("simulated", report.Count(execution.StatusSimulated)),
		zap.Int("skipped", report.Count(execution.StatusSkipped)),
		zap.Int("failed", report.Count(execution.StatusFailed)),
	)

	if err := report.Err(); err != nil {
		r.events.RecordError(ctx, "部分订单执行失败", err, nil)
		return report, fmt.Errorf("app: 调仓执行失败: %w", err)
	}
	return report, nil
}

func (r *Rebalancer) plan(ctx context.Context, weights map[string]float64, params rebalance.Params) (rebalance.TradePlan, error) {
	holdings, err := r.holdings.FetchHoldings(ctx, params.Reserve, tickers(weights))
	if err != nil {
		r.events.RecordError(ctx, "获取持仓失败", err, nil)
		return rebalance.TradePlan{}, fmt.Errorf("app: 获取持仓失败: %w", err)
	}
	r.events.RecordHoldings(ctx, params.Reserve, holdings)

	plan := rebalance.Plan(holdings, weights, params)
	r.events.RecordPlan(ctx, weights, params, plan)
	if r.metrics != nil {
		r.metrics.ObservePlan(plan)
	}

	r.logger.Info("调仓计划已生成",
		zap.String("reserve", plan.Reserve),
		zap.Float64("total_value", plan.TotalValue),
		zap.Float64("basement", plan.Basement),
		zap.Float64("buy_scale", plan.BuyScale),
		zap.Int("trades", len(plan.Trades())),
	)
	return plan, nil
}

func tickers(weights map[string]float64) []string {
	out := make([]string, 0, len(weights))
	for ticker := range weights {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}
