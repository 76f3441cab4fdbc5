package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"coin-rebalancer/internal/candle"
	"coin-rebalancer/internal/config"
)

type fakeAPI struct {
	markets      map[string]ccxt.MarketInterface
	loadCalls    int
	balance      ccxt.Balances
	balanceErrs  []error
	balanceCalls int
	ohlcvPages   [][]ccxt.OHLCV
	ohlcvCalls   int
	openOrders   []ccxt.Order
	cancelled    []string
	orderErr     error
	orderCalls   int
	orderSide    string
	orderAmount  float64
}

func (f *fakeAPI) LoadMarkets(params ...interface{}) (map[string]ccxt.MarketInterface, error) {
	f.loadCalls++
	return f.markets, nil
}

func (f *fakeAPI) FetchBalance(params ...interface{}) (ccxt.Balances, error) {
	f.balanceCalls++
	if len(f.balanceErrs) > 0 {
		err := f.balanceErrs[0]
		f.balanceErrs = f.balanceErrs[1:]
		if err != nil {
			return ccxt.Balances{}, err
		}
	}
	return f.balance, nil
}

func (f *fakeAPI) FetchOHLCV(symbol string, options ...ccxt.FetchOHLCVOptions) ([]ccxt.OHLCV, error) {
	f.ohlcvCalls++
	if len(f.ohlcvPages) == 0 {
		return nil, nil
	}
	page := f.ohlcvPages[0]
	f.ohlcvPages = f.ohlcvPages[1:]
	return page, nil
}

func (f *fakeAPI) FetchOpenOrders(options ...ccxt.FetchOpenOrdersOptions) ([]ccxt.Order, error) {
	return f.openOrders, nil
}

func (f *fakeAPI) CancelOrder(id string, options ...ccxt.CancelOrderOptions) (ccxt.Order, error) {
	f.cancelled = append(f.cancelled, id)
	return ccxt.Order{}, nil
}

func (f *fakeAPI) CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error) {
	f.orderCalls++
	f.orderSide = side
	f.orderAmount = amount
	if f.orderErr != nil {
		return ccxt.Order{}, f.orderErr
	}
	id := "42"
	return ccxt.Order{Id: &id}, nil
}

func testConfig() config.ExchangeConfig {
	return config.ExchangeConfig{
		Name: "binance",
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			MinDelay:    time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
		},
		Breaker: config.BreakerConfig{
			ConsecutiveFailures: 5,
			Interval:            time.Minute,
			Timeout:             time.Minute,
		},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 10},
	}
}

func networkError() error {
	return &ccxt.Error{Type: ccxt.NetworkErrorErrType, Message: "connection reset"}
}

func floatPtr(v float64) *float64 {
	return &v
}

func lotInfo(minQty, step string) map[string]interface{} {
	return map[string]interface{}{
		"filters": []interface{}{
			map[string]interface{}{"filterType": "PRICE_FILTER", "tickSize": "0.000001"},
			map[string]interface{}{"filterType": "LOT_SIZE", "minQty": minQty, "stepSize": step},
		},
	}
}

func TestNewClient_UnknownExchange(t *testing.T) {
	cfg := testConfig()
	cfg.Name = "mtgox"
	if _, err := NewClient(cfg, nil); !errors.Is(err, ErrUnsupportedExchange) {
		t.Fatalf("expected ErrUnsupportedExchange, got %v", err)
	}
}

func TestClient_BalancesRetriesTransientErrors(t *testing.T) {
	api := &fakeAPI{
		balance: ccxt.Balances{Free: map[string]*float64{
			"btc": floatPtr(0.5),
			"ETH": floatPtr(0),
			"ADA": nil,
		}},
		balanceErrs: []error{networkError(), networkError()},
	}
	client := newClient(testConfig(), api, nil)

	balances, err := client.Balances(context.Background())
	if err != nil {
		t.Fatalf("Balances returned error: %v", err)
	}
	if api.balanceCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", api.balanceCalls)
	}
	if len(balances) != 1 || balances["BTC"] != 0.5 {
		t.Fatalf("unexpected balances %v", balances)
	}
}

func TestClient_NonRetryableErrorFailsFast(t *testing.T) {
	api := &fakeAPI{balanceErrs: []error{&ccxt.Error{Type: ccxt.AuthenticationErrorErrType, Message: "bad key"}}}
	client := newClient(testConfig(), api, nil)

	if _, err := client.Balances(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if api.balanceCalls != 1 {
		t.Fatalf("expected single attempt, got %d", api.balanceCalls)
	}
}

func TestClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker.ConsecutiveFailures = 2
	api := &fakeAPI{balanceErrs: []error{networkError(), networkError(), networkError()}}
	client := newClient(cfg, api, nil)

	for i := 0; i < 2; i++ {
		if _, err := client.Balances(context.Background()); err == nil {
			t.Fatalf("expected failure %d", i)
		}
	}
	_, err := client.Balances(context.Background())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if api.balanceCalls != 2 {
		t.Fatalf("open breaker must not call exchange, got %d calls", api.balanceCalls)
	}
}

func TestClient_MarketsAndLotRules(t *testing.T) {
	api := &fakeAPI{markets: map[string]ccxt.MarketInterface{
		"ETH/BTC":       {Info: lotInfo("0.00010000", "0.00010000")},
		"ADA/BTC":       {Info: lotInfo("1.00000000", "1.00000000")},
		"BTC/USDT":      {Info: lotInfo("0.00001000", "0.00001000")},
		"BTC/USDT:USDT": {Info: lotInfo("0.001", "0.001")},
		"XRP/BTC":       {Info: map[string]interface{}{}},
		"DOGE/BTC:BTC":  {Info: map[string]interface{}{}},
	}}
	client := newClient(testConfig(), api, nil)
	ctx := context.Background()

	markets, err := client.Markets(ctx, "btc")
	if err != nil {
		t.Fatalf("Markets returned error: %v", err)
	}
	if len(markets) != 3 || markets[0].Symbol != "ADA/BTC" || markets[1].Base != "ETH" {
		t.Fatalf("unexpected markets %+v", markets)
	}

	ok, err := client.HasMarket(ctx, "ETH/BTC")
	if err != nil || !ok {
		t.Fatalf("expected ETH/BTC to exist, err=%v", err)
	}

	rules, err := client.LotRules(ctx, "ETH/BTC")
	if err != nil {
		t.Fatalf("LotRules returned error: %v", err)
	}
	if rules.MinQty != 0.0001 || rules.StepSize != 0.0001 {
		t.Fatalf("unexpected rules %+v", rules)
	}

	if _, err := client.LotRules(ctx, "LTC/BTC"); !errors.Is(err, ErrMarketNotFound) {
		t.Fatalf("expected ErrMarketNotFound, got %v", err)
	}
	if _, err := client.LotRules(ctx, "XRP/BTC"); !errors.Is(err, ErrLotRulesMissing) {
		t.Fatalf("expected ErrLotRulesMissing, got %v", err)
	}
	if api.loadCalls != 1 {
		t.Fatalf("markets should be loaded once, got %d", api.loadCalls)
	}
}

func TestClient_OrdersRoundTrip(t *testing.T) {
	a, b := "a", "b"
	api := &fakeAPI{openOrders: []ccxt.Order{{Id: &a}, {Id: nil}, {Id: &b}}}
	client := newClient(testConfig(), api, nil)
	ctx := context.Background()

	ids, err := client.OpenOrders(ctx, "ETH/BTC")
	if err != nil || len(ids) != 2 {
		t.Fatalf("unexpected open orders %v err=%v", ids, err)
	}
	for _, id := range ids {
		if err := client.CancelOrder(ctx, "ETH/BTC", id); err != nil {
			t.Fatalf("CancelOrder returned error: %v", err)
		}
	}
	if len(api.cancelled) != 2 {
		t.Fatalf("expected 2 cancellations, got %v", api.cancelled)
	}

	ack, err := client.SubmitMarketOrder(ctx, "ETH/BTC", -1.5)
	if err != nil {
		t.Fatalf("SubmitMarketOrder returned error: %v", err)
	}
	if ack.ID != "42" || ack.Side != "sell" || api.orderSide != "sell" || api.orderAmount != 1.5 {
		t.Fatalf("unexpected ack %+v side=%s amount=%v", ack, api.orderSide, api.orderAmount)
	}
}

func TestClient_SubmitMarketOrderDoesNotRetry(t *testing.T) {
	api := &fakeAPI{orderErr: networkError()}
	client := newClient(testConfig(), api, nil)

	if _, err := client.SubmitMarketOrder(context.Background(), "ETH/BTC", 2); err == nil {
		t.Fatalf("expected error")
	}
	if api.orderCalls != 1 {
		t.Fatalf("market orders must be submitted once, got %d", api.orderCalls)
	}
	if _, err := client.SubmitMarketOrder(context.Background(), "ETH/BTC", 0); err == nil {
		t.Fatalf("expected error for zero quantity")
	}
}

func ohlcvRange(from, to int64) []ccxt.OHLCV {
	out := make([]ccxt.OHLCV, 0, to-from+1)
	for m := from; m <= to; m++ {
		out = append(out, ccxt.OHLCV{
			Timestamp: m * candle.Interval,
			Open:      1,
			High:      2,
			Low:       0.5,
			Close:     1.5,
			Volume:    10,
		})
	}
	return out
}

func TestClient_CandlesPagesUntilEnd(t *testing.T) {
	api := &fakeAPI{ohlcvPages: [][]ccxt.OHLCV{
		ohlcvRange(0, 999),
		ohlcvRange(1000, 1999),
		ohlcvRange(2000, 2100),
	}}
	client := newClient(testConfig(), api, nil)

	candles, err := client.Candles(context.Background(), "ETH/BTC", 0, 1200*candle.Interval)
	if err != nil {
		t.Fatalf("Candles returned error: %v", err)
	}
	if len(candles) != 1201 {
		t.Fatalf("expected 1201 candles, got %d", len(candles))
	}
	if api.ohlcvCalls != 2 {
		t.Fatalf("expected 2 pages, got %d", api.ohlcvCalls)
	}

	first := candles[0]
	if first.Coin != "ETH" || first.CloseTime != candle.Interval-1 || first.QuoteAssetVolume != 15 {
		t.Fatalf("unexpected conversion %+v", first)
	}
}

func TestClient_CandlesStopsOnEmptyPage(t *testing.T) {
	api := &fakeAPI{ohlcvPages: [][]ccxt.OHLCV{ohlcvRange(5, 9)}}
	client := newClient(testConfig(), api, nil)

	candles, err := client.Candles(context.Background(), "ETH/BTC", 5*candle.Interval, 100*candle.Interval)
	if err != nil {
		t.Fatalf("Candles returned error: %v", err)
	}
	if len(candles) != 5 || api.ohlcvCalls != 2 {
		t.Fatalf("unexpected result len=%d calls=%d", len(candles), api.ohlcvCalls)
	}
}

func TestClient_LastPrice(t *testing.T) {
	api := &fakeAPI{ohlcvPages: [][]ccxt.OHLCV{ohlcvRange(7, 7)}}
	client := newClient(testConfig(), api, nil)

	price, err := client.LastPrice(context.Background(), "ETH/BTC")
	if err != nil || price != 1.5 {
		t.Fatalf("unexpected price %v err=%v", price, err)
	}
	if _, err := client.LastPrice(context.Background(), "ETH/BTC"); err == nil {
		t.Fatalf("expected error when no candles are returned")
	}
}
