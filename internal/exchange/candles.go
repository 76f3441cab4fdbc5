package exchange

import (
	"context"
	"fmt"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"coin-rebalancer/internal/candle"
)

// Candles 分页拉取 [start, end] 范围内的一分钟K线，按开盘时间升序。
// 每页请求前经过限速器，避免触发交易所频率限制。
func (c *Client) Candles(ctx context.Context, market string, start, end int64) ([]candle.Candle, error) {
	if end < start {
		return nil, nil
	}

	var out []candle.Candle
	since := candle.Align(start)
	if since < start {
		since += candle.Interval
	}
	pages := 0
	for since <= end {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		page, err := c.fetchOHLCV(ctx, market, since, MaxCandlesPerRequest)
		if err != nil {
			return nil, fmt.Errorf("exchange: 拉取 %s K线失败(since=%d): %w", market, since, err)
		}
		pages++
		if len(page) == 0 {
			break
		}

		for _, item := range page {
			if item.OpenTime >= since && item.OpenTime <= end {
				out = append(out, item)
			}
		}
		next := page[len(page)-1].OpenTime + candle.Interval
		if next <= since {
			break
		}
		since = next
	}

	c.logger.Debug("K线分页拉取完成",
		zap.String("market", market),
		zap.Int64("start", start),
		zap.Int64("end", end),
		zap.Int("pages", pages),
		zap.Int("candles", len(out)),
	)
	return out, nil
}

// fetchOHLCV 拉取单页一分钟K线，since 为0时返回最新数据。
func (c *Client) fetchOHLCV(ctx context.Context, market string, since int64, limit int64) ([]candle.Candle, error) {
	if limit <= 0 {
		limit = 1
	}

	var raw []ccxt.OHLCV
	err := c.callWithRetry(ctx, "fetch_ohlcv_"+Timeframe1m, func() error {
		options := []ccxt.FetchOHLCVOptions{
			ccxt.WithFetchOHLCVTimeframe(Timeframe1m),
			ccxt.WithFetchOHLCVLimit(limit),
		}
		if since > 0 {
			options = append(options, ccxt.WithFetchOHLCVSince(since))
		}
		result, err := c.api.FetchOHLCV(market, options...)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	coin, _, _ := splitSymbol(market)
	return convertOHLCV(coin, raw), nil
}

// convertOHLCV 将统一K线转为入库格式，统一接口缺少的成交笔数与主动买入量置0。
func convertOHLCV(coin string, raw []ccxt.OHLCV) []candle.Candle {
	candles := make([]candle.Candle, 0, len(raw))
	for _, item := range raw {
		candles = append(candles, candle.Candle{
			OpenTime:         item.Timestamp,
			CloseTime:        candle.CloseTimeFor(item.Timestamp),
			Open:             item.Open,
			High:             item.High,
			Low:              item.Low,
			Close:            item.Close,
			Volume:           item.Volume,
			QuoteAssetVolume: item.Volume * item.Close,
			Coin:             coin,
		})
	}
	return candles
}
