package exchange

const (
	// Timeframe1m 为行情入库使用的K线周期。
	Timeframe1m = "1m"
	// MaxCandlesPerRequest 为单次K线请求的最大条数。
	MaxCandlesPerRequest = 1000
)

// LotRules 为交易对的数量约束。
type LotRules struct {
	MinQty   float64 `json:"min_qty"`
	StepSize float64 `json:"step_size"`
}

// OrderAck 为交易所受理订单后的回执。
type OrderAck struct {
	ID     string  `json:"id"`
	Market string  `json:"market"`
	Side   string  `json:"side"`
	Amount float64 `json:"amount"`
}

// Market 描述一个现货交易对。
type Market struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
}
