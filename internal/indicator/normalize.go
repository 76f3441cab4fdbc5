package indicator

import (
	"errors"
	"fmt"

	"coin-rebalancer/internal/candle"
)

// DefaultWindow 约为一周的分钟数。
const DefaultWindow = 10000

// Options 控制归一化行为。
type Options struct {
	Window    int
	Normalize bool
}

// DefaultOptions 返回默认归一化参数。
func DefaultOptions() Options {
	return Options{Window: DefaultWindow, Normalize: true}
}

// NeedsWarmup 判断请求的列是否需要额外的滚动窗口预热数据。
func (o Options) NeedsWarmup(columns []string) bool {
	if !o.Normalize {
		return false
	}
	for _, column := range columns {
		if column == ColumnSpread || column == ColumnVolume {
			return true
		}
	}
	return false
}

// WarmupOffset 返回查询起点需要前移的毫秒数。
func (o Options) WarmupOffset(columns []string) int64 {
	if !o.NeedsWarmup(columns) || o.Window < 1 {
		return 0
	}
	return candle.Interval * int64(o.Window-1)
}

type column struct {
	values []float64
	valid  []bool
}

// Normalize 由K线计算派生列并只返回请求的列，输入不会被修改。
// 启用归一化时 spread 与 volume 按尾随窗口做 z-score，窗口不完整的前 Window-1 行被丢弃；
// 结果未定义的行（open 为0时的 return、窗口标准差为0）同样被丢弃。
func Normalize(candles []candle.Candle, columns []string, opts Options) (Table, error) {
	if len(columns) == 0 {
		return Table{}, errors.New("indicator: 至少需要请求一列")
	}

	warmup := opts.NeedsWarmup(columns)
	if warmup && opts.Window < 2 {
		return Table{}, fmt.Errorf("indicator: 归一化窗口至少为2，当前 %d", opts.Window)
	}

	series := NewSeries(candles)
	computed := make(map[string]column, len(columns))
	for _, name := range columns {
		if _, ok := computed[name]; ok {
			continue
		}
		col, err := derive(series, name, opts)
		if err != nil {
			return Table{}, err
		}
		computed[name] = col
	}

	start := 0
	if warmup {
		start = opts.Window - 1
	}

	table := Table{Columns: append([]string(nil), columns...)}
	for i := start; i < series.Len(); i++ {
		row := make([]float64, len(columns))
		keep := true
		for j, name := range columns {
			col := computed[name]
			if !col.valid[i] {
				keep = false
				break
			}
			row[j] = col.values[i]
		}
		if keep {
			table.Rows = append(table.Rows, row)
		}
	}

	return table, nil
}

func derive(series Series, name string, opts Options) (column, error) {
	n := series.Len()
	switch name {
	case ColumnReturn:
		values := make([]float64, n)
		valid := make([]bool, n)
		for i := 0; i < n; i++ {
			if series.Open[i] == 0 {
				continue
			}
			values[i] = (series.Close[i] - series.Open[i]) / series.Open[i]
			valid[i] = true
		}
		return column{values: values, valid: valid}, nil
	case ColumnSpread:
		values := make([]float64, n)
		for i := 0; i < n; i++ {
			values[i] = series.High[i] - series.Low[i]
		}
		if opts.Normalize {
			return zscore(values, opts.Window)
		}
		return column{values: values, valid: allValid(n)}, nil
	case ColumnVolume:
		if opts.Normalize {
			return zscore(series.Volume, opts.Window)
		}
	}

	raw, ok := series.raw(name)
	if !ok {
		return column{}, fmt.Errorf("indicator: 不支持的列 %q", name)
	}
	values := make([]float64, n)
	copy(values, raw)
	return column{values: values, valid: allValid(n)}, nil
}

func zscore(values []float64, window int) (column, error) {
	out, valid, err := RollingZScore(values, window)
	if err != nil {
		return column{}, err
	}
	return column{values: out, valid: valid}, nil
}

func allValid(n int) []bool {
	valid := make([]bool, n)
	for i := range valid {
		valid[i] = true
	}
	return valid
}
