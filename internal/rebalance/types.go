package rebalance

import "coin-rebalancer/internal/portfolio"

// SolvencyMargin 为买单可动用储备币的比例，预留价格波动空间。
const SolvencyMargin = 0.9

// Params 为调仓约束。
type Params struct {
	Reserve       string  `json:"reserve"`
	TradeBasement float64 `json:"trade_basement"`
	MinReserve    float64 `json:"min_reserve"`
	MinTradeValue float64 `json:"min_trade_value"`
}

// Entry 为单个资产的调仓计划。
type Entry struct {
	Ticker        string  `json:"ticker"`
	Market        string  `json:"market"`
	Price         float64 `json:"price"`
	CurrentShare  float64 `json:"current_share"`
	TargetShare   float64 `json:"target_share"`
	TradeFraction float64 `json:"trade_fraction"`
	TradeValue    float64 `json:"trade_value"`
	TradeQuantity float64 `json:"trade_quantity"`
}

// IsBuy 判断是否为买单。
func (e Entry) IsBuy() bool {
	return e.TradeQuantity > 0
}

// TradePlan 为一次调仓的完整结果，Entries 不包含储备币。
type TradePlan struct {
	Reserve          string               `json:"reserve"`
	TotalValue       float64              `json:"total_value"`
	ReserveAvailable float64              `json:"reserve_available"`
	ReserveTarget    float64              `json:"reserve_target"`
	Basement         float64              `json:"basement"`
	BuyIntent        float64              `json:"buy_intent"`
	BuyScale         float64              `json:"buy_scale"`
	Targets          portfolio.Allocation `json:"targets"`
	Entries          []Entry              `json:"entries"`
}

// Trades 返回交易比例非零的条目。
func (p TradePlan) Trades() []Entry {
	trades := make([]Entry, 0, len(p.Entries))
	for _, e := range p.Entries {
		if e.TradeFraction != 0 {
			trades = append(trades, e)
		}
	}
	return trades
}

// BuyValue 返回全部买单的储备币价值。
func (p TradePlan) BuyValue() float64 {
	total := 0.0
	for _, e := range p.Entries {
		if e.TradeValue > 0 {
			total += e.TradeValue
		}
	}
	return total
}

// LiquidationWeights 返回全部换回储备币的目标权重。
func LiquidationWeights(reserve string) map[string]float64 {
	return map[string]float64{reserve: 1}
}

// LiquidationParams 返回清仓使用的约束，不设置任何死区与储备下限。
func LiquidationParams(reserve string) Params {
	return Params{Reserve: reserve}
}
