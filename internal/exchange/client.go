package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"coin-rebalancer/internal/config"
)

type ccxtAPI interface {
	LoadMarkets(params ...interface{}) (map[string]ccxt.MarketInterface, error)
	FetchBalance(params ...interface{}) (ccxt.Balances, error)
	FetchOHLCV(symbol string, options ...ccxt.FetchOHLCVOptions) ([]ccxt.OHLCV, error)
	FetchOpenOrders(options ...ccxt.FetchOpenOrdersOptions) ([]ccxt.Order, error)
	CancelOrder(id string, options ...ccxt.CancelOrderOptions) (ccxt.Order, error)
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
}

type constructor func(userConfig map[string]interface{}, sandbox bool) ccxtAPI

var registry = map[string]constructor{
	"binance": func(userConfig map[string]interface{}, sandbox bool) ccxtAPI {
		ex := ccxt.NewBinance(userConfig)
		if sandbox {
			ex.SetSandboxMode(true)
		}
		return ex
	},
	"binanceus": func(userConfig map[string]interface{}, sandbox bool) ccxtAPI {
		ex := ccxt.NewBinanceus(userConfig)
		if sandbox {
			ex.SetSandboxMode(true)
		}
		return ex
	},
}

// Supported 返回已注册的交易所名称。
func Supported() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Client 负责与现货交易所交互，所有调用经过重试与熔断。
type Client struct {
	cfg     config.ExchangeConfig
	logger  *zap.Logger
	api     ccxtAPI
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	marketsMu     sync.Mutex
	marketsLoaded bool
	markets       map[string]map[string]interface{}
}

// NewClient 按名称构造交易所客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q，可选 %v", ErrUnsupportedExchange, cfg.Name, Supported())
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "spot",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}

	return newClient(cfg, build(userConfig, cfg.UseSandbox), logger), nil
}

func newClient(cfg config.ExchangeConfig, api ccxtAPI, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	failures := cfg.Breaker.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:     "exchange:" + cfg.Name,
		Interval: cfg.Breaker.Interval,
		Timeout:  cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// 只有网络类故障计入熔断，业务错误（如余额不足）不影响熔断状态。
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			_, retry := classifyError(err)
			return !retry
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("交易所熔断状态变化",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	rps := cfg.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		api:     api,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Name 返回交易所名称。
func (c *Client) Name() string {
	return c.cfg.Name
}

// Balances 返回各币种的可用余额。
func (c *Client) Balances(ctx context.Context) (map[string]float64, error) {
	var raw ccxt.Balances
	err := c.callWithRetry(ctx, "fetch_balance", func() error {
		balances, err := c.api.FetchBalance()
		if err != nil {
			return err
		}
		raw = balances
		return nil
	})
	if err != nil {
		return nil, err
	}

	balances := make(map[string]float64, len(raw.Free))
	for code, free := range raw.Free {
		if v := derefFloat(free); v > 0 {
			balances[strings.ToUpper(code)] = v
		}
	}
	return balances, nil
}

// HasMarket 判断交易对是否存在。
func (c *Client) HasMarket(ctx context.Context, market string) (bool, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return false, err
	}
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()
	_, ok := c.markets[market]
	return ok, nil
}

// Markets 返回以 quote 报价的全部现货交易对，按交易对排序。
func (c *Client) Markets(ctx context.Context, quote string) ([]Market, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return nil, err
	}

	quote = strings.ToUpper(quote)
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	markets := make([]Market, 0)
	for symbol := range c.markets {
		base, q, ok := splitSymbol(symbol)
		if !ok || q != quote {
			continue
		}
		markets = append(markets, Market{Symbol: symbol, Base: base, Quote: q})
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].Symbol < markets[j].Symbol })
	return markets, nil
}

// LotRules 返回交易对的最小数量与步长。
func (c *Client) LotRules(ctx context.Context, market string) (LotRules, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return LotRules{}, err
	}

	c.marketsMu.Lock()
	info, ok := c.markets[market]
	c.marketsMu.Unlock()
	if !ok {
		return LotRules{}, fmt.Errorf("%w: %s", ErrMarketNotFound, market)
	}

	rules, ok := lotRulesFromInfo(info)
	if !ok {
		return LotRules{}, fmt.Errorf("%w: %s", ErrLotRulesMissing, market)
	}
	return rules, nil
}

// LastPrice 返回最近一根一分钟K线的收盘价。
func (c *Client) LastPrice(ctx context.Context, market string) (float64, error) {
	candles, err := c.fetchOHLCV(ctx, market, 0, 1)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, fmt.Errorf("exchange: %s 没有可用的K线", market)
	}
	return candles[len(candles)-1].Close, nil
}

// OpenOrders 返回交易对当前挂单的编号。
func (c *Client) OpenOrders(ctx context.Context, market string) ([]string, error) {
	var raw []ccxt.Order
	err := c.callWithRetry(ctx, "fetch_open_orders", func() error {
		orders, err := c.api.FetchOpenOrders(ccxt.WithFetchOpenOrdersSymbol(market))
		if err != nil {
			return err
		}
		raw = orders
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(raw))
	for _, order := range raw {
		if id := derefString(order.Id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CancelOrder 撤销指定挂单。
func (c *Client) CancelOrder(ctx context.Context, market, orderID string) error {
	return c.callWithRetry(ctx, "cancel_order", func() error {
		_, err := c.api.CancelOrder(orderID, ccxt.WithCancelOrderSymbol(market))
		return err
	})
}

// SubmitMarketOrder 提交市价单，正数为买入，负数为卖出。
// 市价单只提交一次，不做自动重试。
func (c *Client) SubmitMarketOrder(ctx context.Context, market string, quantity float64) (OrderAck, error) {
	if quantity == 0 || math.IsNaN(quantity) {
		return OrderAck{}, fmt.Errorf("exchange: 无效下单数量 %v", quantity)
	}
	side := "buy"
	if quantity < 0 {
		side = "sell"
	}
	amount := math.Abs(quantity)

	if err := ctx.Err(); err != nil {
		return OrderAck{}, err
	}

	var order ccxt.Order
	err := c.guard(func() error {
		result, err := c.api.CreateMarketOrder(market, side, amount)
		if err != nil {
			return err
		}
		order = result
		return nil
	})
	if err != nil {
		normalized, _ := classifyError(err)
		c.logger.Error("提交市价单失败",
			zap.String("market", market),
			zap.String("side", side),
			zap.Float64("amount", amount),
			zap.Error(normalized),
		)
		return OrderAck{}, normalized
	}

	return OrderAck{
		ID:     derefString(order.Id),
		Market: market,
		Side:   side,
		Amount: amount,
	}, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	var raw map[string]ccxt.MarketInterface
	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		markets, err := c.api.LoadMarkets()
		if err != nil {
			return err
		}
		raw = markets
		return nil
	})
	if loadErr != nil {
		return loadErr
	}

	c.markets = make(map[string]map[string]interface{}, len(raw))
	for symbol, market := range raw {
		c.markets[symbol] = market.Info
	}
	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载",
		zap.String("exchange", c.cfg.Name),
		zap.Int("markets", len(c.markets)),
	)
	return nil
}

// guard 通过熔断器执行一次调用。
func (c *Client) guard(fn func() error) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := c.guard(fn)
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) || errors.Is(normalizedErr, ErrCircuitOpen) {
			c.logger.Warn("交易所暂不可用",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= maxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		case ccxt.BadSymbolErrType:
			return fmt.Errorf("%w: %s", ErrMarketNotFound, ccxtErr.Message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}
