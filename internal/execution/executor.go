package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"coin-rebalancer/internal/exchange"
	"coin-rebalancer/internal/rebalance"
)

type orderClient interface {
	OpenOrders(ctx context.Context, market string) ([]string, error)
	CancelOrder(ctx context.Context, market, orderID string) error
	LotRules(ctx context.Context, market string) (exchange.LotRules, error)
	SubmitMarketOrder(ctx context.Context, market string, quantity float64) (exchange.OrderAck, error)
}

// Executor 将调仓计划转化为市价单，逐个资产串行提交。
// 共享同一份储备币余额，不能并发下单。
type Executor struct {
	client orderClient
	logger *zap.Logger
}

// NewExecutor 创建执行器。
func NewExecutor(client orderClient, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		client: client,
		logger: logger,
	}
}

// Execute 依次撤销挂单并提交市价单，单个资产失败不会影响其余资产。
func (e *Executor) Execute(ctx context.Context, plan rebalance.TradePlan) Report {
	trades := orderedTrades(plan)
	report := Report{
		Trades:     trades,
		Outcomes:   make([]Outcome, 0, len(trades)),
		ExecutedAt: time.Now().UTC(),
	}

	for _, trade := range trades {
		outcome := e.executeOne(ctx, trade)
		switch outcome.Status {
		case StatusFailed:
			e.logger.Error("下单失败",
				zap.String("ticker", outcome.Ticker),
				zap.String("market", outcome.Market),
				zap.Float64("quantity", outcome.Planned),
				zap.Error(outcome.Err),
			)
		case StatusSkipped:
			e.logger.Info("交易数量不足，已跳过",
				zap.String("ticker", outcome.Ticker),
				zap.Float64("quantity", outcome.Planned),
				zap.String("reason", outcome.Reason),
			)
		default:
			e.logger.Info("已提交市价单",
				zap.String("ticker", outcome.Ticker),
				zap.String("side", string(outcome.Side)),
				zap.Float64("quantity", outcome.Quantity),
				zap.String("order_id", outcome.OrderID),
			)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report
}

func (e *Executor) executeOne(ctx context.Context, trade rebalance.Entry) Outcome {
	outcome := Outcome{
		Ticker:  trade.Ticker,
		Market:  trade.Market,
		Side:    SideOf(trade.TradeQuantity),
		Planned: trade.TradeQuantity,
	}

	if err := ctx.Err(); err != nil {
		return failed(outcome, err)
	}

	outcome.Cancelled = e.cancelOpenOrders(ctx, trade.Market)

	rules, err := e.client.LotRules(ctx, trade.Market)
	if err != nil {
		return failed(outcome, fmt.Errorf("execution: 获取 %s 下单规则失败: %w", trade.Market, err))
	}

	qty := NormalizeQuantity(trade.TradeQuantity, rules)
	if qty == 0 {
		outcome.Status = StatusSkipped
		outcome.Reason = fmt.Sprintf("数量 %.8f 低于最小下单量 %.8f", math.Abs(trade.TradeQuantity), rules.MinQty)
		return outcome
	}
	outcome.Quantity = qty

	ack, err := e.client.SubmitMarketOrder(ctx, trade.Market, qty)
	if err != nil {
		return failed(outcome, fmt.Errorf("execution: 提交 %s 市价单失败: %w", trade.Market, err))
	}

	outcome.Status = StatusSubmitted
	outcome.OrderID = ack.ID
	return outcome
}

// cancelOpenOrders 尽力撤销挂单，失败只记录日志。
func (e *Executor) cancelOpenOrders(ctx context.Context, market string) int {
	ids, err := e.client.OpenOrders(ctx, market)
	if err != nil {
		e.logger.Warn("查询挂单失败，继续下单",
			zap.String("market", market),
			zap.Error(err),
		)
		return 0
	}

	cancelled := 0
	for _, id := range ids {
		if err := e.client.CancelOrder(ctx, market, id); err != nil {
			e.logger.Warn("撤单失败，继续下单",
				zap.String("market", market),
				zap.String("order_id", id),
				zap.Error(err),
			)
			continue
		}
		cancelled++
	}
	return cancelled
}

func failed(outcome Outcome, err error) Outcome {
	outcome.Status = StatusFailed
	outcome.Err = err
	outcome.Reason = err.Error()
	return outcome
}
