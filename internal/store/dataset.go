package store

import (
	"context"
	"fmt"

	"coin-rebalancer/internal/indicator"
)

// Dataset 从行情表读取并生成分析用的数值表。
type Dataset struct {
	repo *CandleRepo
}

// NewDataset 创建 Dataset。
func NewDataset(repo *CandleRepo) *Dataset {
	return &Dataset{repo: repo}
}

// Load 读取单个币种 [start, end] 的数据并计算请求的列。
// 需要归一化 spread 或 volume 时查询起点前移 Window-1 分钟，使输出仍从 start 开始。
func (d *Dataset) Load(ctx context.Context, coin string, columns []string, start, end int64, opts indicator.Options) (indicator.Table, error) {
	from := start - opts.WarmupOffset(columns)

	candles, err := d.repo.Query(ctx, coin, from, end)
	if err != nil {
		return indicator.Table{}, err
	}

	table, err := indicator.Normalize(candles, columns, opts)
	if err != nil {
		return indicator.Table{}, fmt.Errorf("store: 计算 %s 数据列失败: %w", coin, err)
	}
	return table, nil
}

// Grab 读取多个币种并按 open_time 外连接，列名为 <列>_<币种>。
func (d *Dataset) Grab(ctx context.Context, coins, columns []string, start, end int64, opts indicator.Options) (indicator.Table, error) {
	withKey := columns
	if !contains(columns, indicator.ColumnOpenTime) {
		withKey = append([]string{indicator.ColumnOpenTime}, columns...)
	}

	tables := make(map[string]indicator.Table, len(coins))
	for _, coin := range coins {
		table, err := d.Load(ctx, coin, withKey, start, end, opts)
		if err != nil {
			return indicator.Table{}, err
		}
		tables[coin] = table
	}
	return indicator.Join(tables)
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
