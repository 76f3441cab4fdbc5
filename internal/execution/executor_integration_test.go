//go:build integration

package execution

import (
	"context"
	"os"
	"sort"
	"testing"
	"time"

	"go.uber.org/zap"

	"coin-rebalancer/internal/config"
	"coin-rebalancer/internal/exchange"
	"coin-rebalancer/internal/portfolio"
	"coin-rebalancer/internal/rebalance"
)

func TestExecutorIntegration_SandboxMinimumBuy(t *testing.T) {
	configPath := os.Getenv("REBALANCER_CONFIG")
	if configPath == "" {
		configPath = "../../configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if !cfg.Exchange.UseSandbox {
		t.Skip("exchange.use_sandbox=false，出于安全考虑跳过真实下单测试")
	}
	if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
		t.Skip("缺少测试网 API 密钥，跳过测试")
	}
	if len(cfg.Rebalance.Weights) == 0 {
		t.Skip("配置缺少目标权重，跳过测试")
	}

	logger := zap.NewExample()
	client, err := exchange.NewClient(cfg.Exchange, logger)
	if err != nil {
		t.Fatalf("初始化交易所客户端失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	reserve := cfg.Rebalance.Reserve
	var ticker string
	tickers := make([]string, 0, len(cfg.Rebalance.Weights))
	for name := range cfg.Rebalance.Weights {
		tickers = append(tickers, name)
	}
	sort.Strings(tickers)
	for _, candidate := range tickers {
		if candidate != reserve {
			ticker = candidate
			break
		}
	}
	if ticker == "" {
		t.Skip("权重中只有储备币，跳过测试")
	}
	market := portfolio.MarketSymbol(ticker, reserve)

	holdings, err := portfolio.NewManager(client, logger).FetchHoldings(ctx, reserve, tickers)
	if err != nil {
		t.Fatalf("获取持仓失败: %v", err)
	}
	t.Logf("当前持仓: %+v", holdings)

	rules, err := client.LotRules(ctx, market)
	if err != nil {
		t.Fatalf("获取 %s 交易规则失败: %v", market, err)
	}
	price, err := client.LastPrice(ctx, market)
	if err != nil {
		t.Fatalf("获取 %s 价格失败: %v", market, err)
	}

	plan := rebalance.TradePlan{
		Reserve: reserve,
		Entries: []rebalance.Entry{{
			Ticker:        ticker,
			Market:        market,
			Price:         price,
			TradeFraction: 1e-9,
			TradeQuantity: rules.MinQty,
		}},
	}

	report := NewExecutor(client, logger).Execute(ctx, plan)
	if len(report.Outcomes) != 1 {
		t.Fatalf("期望 1 个执行结果，实际 %d", len(report.Outcomes))
	}
	outcome := report.Outcomes[0]
	t.Logf("执行结果: %+v", outcome)
	if outcome.Status == StatusFailed {
		t.Fatalf("测试网下单失败: %v", outcome.Err)
	}
}
