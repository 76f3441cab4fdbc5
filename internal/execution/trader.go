package execution

import (
	"context"
	"sort"

	"coin-rebalancer/internal/rebalance"
)

// Trader 抽象执行器接口，方便切换真实或模拟下单。
type Trader interface {
	Execute(ctx context.Context, plan rebalance.TradePlan) Report
}

var (
	_ Trader = (*Executor)(nil)
	_ Trader = (*SimulatedExecutor)(nil)
)

// orderedTrades 返回需要执行的交易，先卖后买以释放储备币，同方向按 ticker 排序。
func orderedTrades(plan rebalance.TradePlan) []rebalance.Entry {
	trades := plan.Trades()
	sort.SliceStable(trades, func(i, j int) bool {
		si, sj := trades[i].TradeQuantity < 0, trades[j].TradeQuantity < 0
		if si != sj {
			return si
		}
		return trades[i].Ticker < trades[j].Ticker
	})
	return trades
}
