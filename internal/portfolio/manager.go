package portfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

type accountClient interface {
	Balances(ctx context.Context) (map[string]float64, error)
	HasMarket(ctx context.Context, market string) (bool, error)
	LastPrice(ctx context.Context, market string) (float64, error)
}

// Manager 从交易所账户构建持仓快照。
type Manager struct {
	client accountClient
	logger *zap.Logger
}

// NewManager 创建持仓管理器。
func NewManager(client accountClient, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client: client,
		logger: logger,
	}
}

// FetchHoldings 返回储备币及所有可交易资产的持仓，按 ticker 排序。
// 储备币价格恒为1；余额为0但出现在 extra 中的资产也会返回，便于按目标权重买入。
// 没有以储备币报价市场的资产会被跳过。
func (m *Manager) FetchHoldings(ctx context.Context, reserve string, extra []string) ([]Holding, error) {
	reserve = strings.ToUpper(strings.TrimSpace(reserve))
	if reserve == "" {
		return nil, fmt.Errorf("portfolio: 储备币不能为空")
	}

	balances, err := m.client.Balances(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio: 获取账户余额失败: %w", err)
	}

	tickers := make(map[string]float64, len(balances)+len(extra))
	for code, amount := range balances {
		if amount > 0 {
			tickers[strings.ToUpper(code)] += amount
		}
	}
	for _, ticker := range extra {
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if _, ok := tickers[ticker]; !ok && ticker != "" {
			tickers[ticker] = 0
		}
	}

	holdings := []Holding{{
		Ticker:  reserve,
		Market:  MarketSymbol(reserve, reserve),
		Price:   1,
		Balance: tickers[reserve],
	}}
	delete(tickers, reserve)

	names := make([]string, 0, len(tickers))
	for ticker := range tickers {
		names = append(names, ticker)
	}
	sort.Strings(names)

	for _, ticker := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		market := MarketSymbol(ticker, reserve)
		ok, err := m.client.HasMarket(ctx, market)
		if err != nil {
			return nil, fmt.Errorf("portfolio: 查询市场 %s 失败: %w", market, err)
		}
		if !ok {
			m.logger.Warn("资产没有储备币报价市场，已跳过",
				zap.String("ticker", ticker),
				zap.String("market", market),
			)
			continue
		}

		price, err := m.client.LastPrice(ctx, market)
		if err != nil {
			return nil, fmt.Errorf("portfolio: 获取 %s 最新价格失败: %w", market, err)
		}

		holdings = append(holdings, Holding{
			Ticker:  ticker,
			Market:  market,
			Price:   price,
			Balance: tickers[ticker],
		})
	}

	sort.SliceStable(holdings, func(i, j int) bool { return holdings[i].Ticker < holdings[j].Ticker })

	m.logger.Debug("已获取持仓快照",
		zap.String("reserve", reserve),
		zap.Int("holdings", len(holdings)),
		zap.Float64("total_value", TotalValue(holdings)),
	)
	return holdings, nil
}
