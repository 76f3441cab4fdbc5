package execution

import (
	"math"

	"github.com/shopspring/decimal"

	"coin-rebalancer/internal/exchange"
)

// QuantityPrecision 为下单数量先行保留的小数位。
const QuantityPrecision = 6

// NormalizeQuantity 将计划数量对齐到交易所的最小数量与步长，保留方向。
// 结果为0表示数量不足以下单，应跳过而非报错。
func NormalizeQuantity(raw float64, rules exchange.LotRules) float64 {
	if raw == 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0
	}

	qty := decimal.NewFromFloat(math.Abs(raw)).Round(QuantityPrecision)
	minQty := decimal.NewFromFloat(math.Max(rules.MinQty, 0))
	if qty.LessThan(minQty) {
		return 0
	}

	if rules.StepSize > 0 {
		step := decimal.NewFromFloat(rules.StepSize)
		qty = qty.Sub(qty.Sub(minQty).Mod(step))
	}
	if !qty.IsPositive() {
		return 0
	}

	out := qty.InexactFloat64()
	if raw < 0 {
		return -out
	}
	return out
}
