package execution

import (
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"coin-rebalancer/internal/exchange"
)

func TestNormalizeQuantity_Cases(t *testing.T) {
	cases := []struct {
		name  string
		raw   float64
		rules exchange.LotRules
		want  float64
	}{
		{"aligned down", 1.23456789, exchange.LotRules{MinQty: 0.001, StepSize: 0.001}, 1.234},
		{"sell keeps sign", -2.5555, exchange.LotRules{MinQty: 0.01, StepSize: 0.01}, -2.55},
		{"below minimum", 0.0009, exchange.LotRules{MinQty: 0.001, StepSize: 0.001}, 0},
		{"offset from minimum", 1.0, exchange.LotRules{MinQty: 0.15, StepSize: 0.1}, 0.95},
		{"no step", 3.1415926, exchange.LotRules{MinQty: 0.1}, 3.141593},
		{"zero", 0, exchange.LotRules{MinQty: 0.1, StepSize: 0.1}, 0},
		{"nan", math.NaN(), exchange.LotRules{}, 0},
		{"rounds to zero", 0.0000001, exchange.LotRules{}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeQuantity(tc.raw, tc.rules)
			if math.Abs(got-tc.want) > 1e-12 {
				t.Fatalf("NormalizeQuantity(%v) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalizeQuantity_StepProperty(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	steps := []float64{0.1, 0.01, 0.001, 0.00001, 1}
	for i := 0; i < 1000; i++ {
		step := steps[r.Intn(len(steps))]
		minQty := decimal.NewFromFloat(step).Mul(decimal.NewFromInt(int64(r.Intn(5) + 1))).InexactFloat64()
		raw := minQty + r.Float64()*100
		if r.Intn(2) == 0 {
			raw = -raw
		}

		got := NormalizeQuantity(raw, exchange.LotRules{MinQty: minQty, StepSize: step})
		if got == 0 {
			t.Fatalf("iteration %d: raw %v above minimum returned 0", i, raw)
		}
		if (got < 0) != (raw < 0) {
			t.Fatalf("iteration %d: sign flipped %v -> %v", i, raw, got)
		}

		rem := decimal.NewFromFloat(math.Abs(got)).Sub(decimal.NewFromFloat(minQty)).Mod(decimal.NewFromFloat(step))
		if !rem.IsZero() {
			t.Fatalf("iteration %d: %v not aligned to step %v (rem %s)", i, got, step, rem)
		}
		if math.Abs(got) > math.Abs(raw)+1e-6 {
			t.Fatalf("iteration %d: normalized %v exceeds raw %v", i, got, raw)
		}
	}
}

func TestNormalizeQuantity_BelowMinimumSkips(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for i := 0; i < 200; i++ {
		minQty := 0.01 + r.Float64()
		raw := minQty * r.Float64() * 0.99
		if got := NormalizeQuantity(raw, exchange.LotRules{MinQty: minQty, StepSize: 0.001}); got > 0 {
			t.Fatalf("raw %v below min %v returned %v", raw, minQty, got)
		}
	}
}
