package portfolio

import (
	"math"
	"strings"
)

// Holding 表示单个资产的持仓，价格以储备币计价。
type Holding struct {
	Ticker  string  `json:"ticker"`
	Market  string  `json:"market"`
	Price   float64 `json:"price"`
	Balance float64 `json:"balance"`
}

// Value 返回以储备币计价的持仓价值，非法数值按0处理。
func (h Holding) Value() float64 {
	return nonNegative(h.Balance) * nonNegative(h.Price)
}

// Allocation 为各资产占组合总价值的比例。
type Allocation map[string]float64

// MarketSymbol 返回 ticker 以储备币报价的交易对，如 ETH/BTC。
func MarketSymbol(ticker, reserve string) string {
	return strings.ToUpper(ticker) + "/" + strings.ToUpper(reserve)
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
