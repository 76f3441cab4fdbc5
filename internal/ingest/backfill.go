package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"coin-rebalancer/internal/candle"
	"coin-rebalancer/internal/portfolio"
)

// ErrInvalidRange 表示时间范围非法。
var ErrInvalidRange = errors.New("ingest: 结束时间早于开始时间")

// BackfillResult 记录一次补数结果。
type BackfillResult struct {
	Coin string       `json:"coin"`
	Gaps []candle.Gap `json:"gaps"`
	Rows int          `json:"rows"`
}

// Gaps 返回 [start, end] 范围内已存储序列的缺口，按时间降序。
func (p *Pipeline) Gaps(ctx context.Context, coin string, start, end int64) ([]candle.Gap, error) {
	if end < start {
		return nil, ErrInvalidRange
	}
	stored, err := p.store.Query(ctx, coin, start, end)
	if err != nil {
		return nil, err
	}
	return candle.FindGaps(stored), nil
}

// Backfill 检测缺口并逐个重新拉取写入。交易所本身缺失的分钟不会被补齐。
func (p *Pipeline) Backfill(ctx context.Context, coin string, start, end int64) (BackfillResult, error) {
	result := BackfillResult{Coin: coin}

	gaps, err := p.Gaps(ctx, coin, start, end)
	if err != nil {
		return result, fmt.Errorf("ingest: 检测 %s 缺口失败: %w", coin, err)
	}
	result.Gaps = gaps
	if len(gaps) == 0 {
		p.logger.Info("未发现缺口", zap.String("coin", coin))
		return result, nil
	}

	market := portfolio.MarketSymbol(coin, p.opts.Reserve)
	for _, gap := range gaps {
		fetched, err := p.source.Candles(ctx, market, gap.Start, gap.End)
		if err != nil {
			return result, fmt.Errorf("ingest: 补数 %s [%d, %d] 失败: %w", coin, gap.Start, gap.End, err)
		}
		for i := range fetched {
			fetched[i].Coin = coin
		}
		n, err := p.store.Append(ctx, coin, fetched)
		result.Rows += n
		if err != nil {
			return result, fmt.Errorf("ingest: 写入 %s 补数失败: %w", coin, err)
		}
		p.logger.Debug("缺口已补数",
			zap.String("coin", coin),
			zap.Int64("start", gap.Start),
			zap.Int64("end", gap.End),
			zap.Int64("minutes", gap.Minutes()),
			zap.Int("rows", n),
		)
	}

	p.logger.Info("补数完成",
		zap.String("coin", coin),
		zap.Int("gaps", len(gaps)),
		zap.Int("rows", result.Rows),
	)
	return result, nil
}
