package execution

import (
	"context"
	"time"

	"go.uber.org/zap"

	"coin-rebalancer/internal/exchange"
	"coin-rebalancer/internal/rebalance"
)

type lotRulesClient interface {
	LotRules(ctx context.Context, market string) (exchange.LotRules, error)
}

// SimulatedExecutor 只计算可执行数量，不撤单也不下单。
// client 为 nil 时不做步长对齐。
type SimulatedExecutor struct {
	client lotRulesClient
	logger *zap.Logger
}

// NewSimulatedExecutor 创建模拟执行器。
func NewSimulatedExecutor(client lotRulesClient, logger *zap.Logger) *SimulatedExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedExecutor{client: client, logger: logger}
}

// Execute 输出模拟结果。
func (s *SimulatedExecutor) Execute(ctx context.Context, plan rebalance.TradePlan) Report {
	trades := orderedTrades(plan)
	report := Report{
		Trades:     trades,
		Outcomes:   make([]Outcome, 0, len(trades)),
		DryRun:     true,
		ExecutedAt: time.Now().UTC(),
	}

	for _, trade := range trades {
		outcome := Outcome{
			Ticker:  trade.Ticker,
			Market:  trade.Market,
			Side:    SideOf(trade.TradeQuantity),
			Planned: trade.TradeQuantity,
		}

		var rules exchange.LotRules
		if s.client != nil {
			r, err := s.client.LotRules(ctx, trade.Market)
			if err != nil {
				report.Outcomes = append(report.Outcomes, failed(outcome, err))
				continue
			}
			rules = r
		}

		outcome.Quantity = NormalizeQuantity(trade.TradeQuantity, rules)
		if outcome.Quantity == 0 {
			outcome.Status = StatusSkipped
			outcome.Reason = "数量低于最小下单量"
		} else {
			outcome.Status = StatusSimulated
		}

		s.logger.Info("模拟下单",
			zap.String("ticker", outcome.Ticker),
			zap.String("side", string(outcome.Side)),
			zap.Float64("quantity", outcome.Quantity),
			zap.String("status", string(outcome.Status)),
		)
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report
}
