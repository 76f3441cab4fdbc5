package portfolio

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// TotalValue 返回组合总价值。
func TotalValue(holdings []Holding) float64 {
	values := make([]float64, len(holdings))
	for i, h := range holdings {
		values[i] = h.Value()
	}
	return floats.Sum(values)
}

// Distribution 计算当前配置比例，总价值为0时全部比例为0。
func Distribution(holdings []Holding) Allocation {
	allocation := make(Allocation, len(holdings))
	total := TotalValue(holdings)
	for _, h := range holdings {
		share := 0.0
		if total > 0 {
			share = h.Value() / total
		}
		allocation[h.Ticker] += share
	}
	return allocation
}

// SortByValue 返回按价值降序排列的新切片。
func SortByValue(holdings []Holding) []Holding {
	out := make([]Holding, len(holdings))
	copy(out, holdings)
	sort.SliceStable(out, func(i, j int) bool {
		vi, vj := out[i].Value(), out[j].Value()
		if vi == vj {
			return out[i].Ticker < out[j].Ticker
		}
		return vi > vj
	})
	return out
}
