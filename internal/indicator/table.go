package indicator

import "fmt"

// 支持的列名。
const (
	ColumnOpenTime         = "open_time"
	ColumnCloseTime        = "close_time"
	ColumnNumTrades        = "num_trades"
	ColumnOpen             = "open"
	ColumnHigh             = "high"
	ColumnLow              = "low"
	ColumnClose            = "close"
	ColumnVolume           = "volume"
	ColumnQuoteAssetVolume = "quote_asset_volume"
	ColumnTakerBuyBase     = "taker_buy_base_asset_volume"
	ColumnTakerBuyQuote    = "taker_buy_quote_asset_volume"
	ColumnReturn           = "return"
	ColumnSpread           = "spread"
)

// Columns 返回全部可请求的列。
func Columns() []string {
	return []string{
		ColumnOpenTime, ColumnCloseTime, ColumnNumTrades,
		ColumnOpen, ColumnHigh, ColumnLow, ColumnClose, ColumnVolume,
		ColumnQuoteAssetVolume, ColumnTakerBuyBase, ColumnTakerBuyQuote,
		ColumnReturn, ColumnSpread,
	}
}

// Table 为按行存储的只读数值表。
type Table struct {
	Columns []string
	Rows    [][]float64
}

// Len 返回行数。
func (t Table) Len() int {
	return len(t.Rows)
}

// Index 返回列下标，不存在时返回 -1。
func (t Table) Index(column string) int {
	for i, name := range t.Columns {
		if name == column {
			return i
		}
	}
	return -1
}

// Column 复制出单列数据。
func (t Table) Column(column string) ([]float64, error) {
	idx := t.Index(column)
	if idx < 0 {
		return nil, fmt.Errorf("indicator: 列 %q 不存在", column)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}
