package rebalance

import (
	"math"
	"sort"
	"strings"

	"coin-rebalancer/internal/indicator"
	"coin-rebalancer/internal/portfolio"
)

// Plan 根据当前持仓、目标权重与约束生成调仓计划。
// 纯函数，不修改输入，退化输入（总价值为0、权重全为0、缺少储备币）均有确定结果。
func Plan(holdings []portfolio.Holding, weights map[string]float64, params Params) TradePlan {
	reserve := strings.ToUpper(strings.TrimSpace(params.Reserve))
	rows := withReserve(holdings, reserve)

	current := portfolio.Distribution(rows)
	total := portfolio.TotalValue(rows)
	targets := targetShares(rows, weights, reserve, params.MinReserve)

	basement := params.TradeBasement
	if total > 0 {
		basement = math.Max(basement, indicator.SafeDivide(params.MinTradeValue, total))
	}

	plan := TradePlan{
		Reserve:       reserve,
		TotalValue:    total,
		ReserveTarget: targets[reserve],
		Basement:      basement,
		BuyScale:      1,
		Targets:       targets,
	}

	for _, h := range rows {
		if h.Ticker == reserve {
			plan.ReserveAvailable += h.Value()
			continue
		}

		entry := Entry{
			Ticker:       h.Ticker,
			Market:       h.Market,
			Price:        h.Price,
			CurrentShare: current[h.Ticker],
			TargetShare:  targets[h.Ticker],
		}
		if total > 0 {
			fraction := entry.TargetShare - entry.CurrentShare
			if math.Abs(fraction) > basement {
				entry.TradeFraction = fraction
			}
		}
		entry.TradeValue = entry.TradeFraction * total
		if entry.TradeValue > 0 {
			plan.BuyIntent += entry.TradeValue
		}
		plan.Entries = append(plan.Entries, entry)
	}

	budget := SolvencyMargin * plan.ReserveAvailable
	if plan.BuyIntent > budget {
		plan.BuyScale = indicator.SafeDivide(budget, plan.BuyIntent)
	}

	for i := range plan.Entries {
		e := &plan.Entries[i]
		if e.TradeValue > 0 {
			e.TradeValue *= plan.BuyScale
		}
		if e.Price > 0 && !math.IsNaN(e.Price) {
			e.TradeQuantity = e.TradeValue / e.Price
		}
	}

	sort.SliceStable(plan.Entries, func(i, j int) bool { return plan.Entries[i].Ticker < plan.Entries[j].Ticker })
	return plan
}

// withReserve 统一 ticker 大小写，合并同一 ticker 的多行余额，并在缺少储备币时补一行余额为0的记录。
func withReserve(holdings []portfolio.Holding, reserve string) []portfolio.Holding {
	rows := make([]portfolio.Holding, 0, len(holdings)+1)
	index := make(map[string]int, len(holdings)+1)
	for _, h := range holdings {
		h.Ticker = strings.ToUpper(strings.TrimSpace(h.Ticker))
		i, seen := index[h.Ticker]
		if !seen {
			index[h.Ticker] = len(rows)
			rows = append(rows, h)
			continue
		}
		merged := &rows[i]
		merged.Balance += h.Balance
		if merged.Market == "" {
			merged.Market = h.Market
		}
		if !(merged.Price > 0) && h.Price > 0 {
			merged.Price = h.Price
		}
	}
	if _, ok := index[reserve]; !ok {
		rows = append(rows, portfolio.Holding{
			Ticker: reserve,
			Market: portfolio.MarketSymbol(reserve, reserve),
			Price:  1,
		})
	}
	return rows
}

// targetShares 归一化目标权重并执行储备币下限，结果之和为1。
func targetShares(rows []portfolio.Holding, weights map[string]float64, reserve string, minReserve float64) portfolio.Allocation {
	normalized := make(map[string]float64, len(weights))
	for ticker, w := range weights {
		if w > 0 && !math.IsInf(w, 0) {
			normalized[strings.ToUpper(strings.TrimSpace(ticker))] += w
		}
	}

	targets := make(portfolio.Allocation, len(rows))
	sum := 0.0
	for _, h := range rows {
		if _, seen := targets[h.Ticker]; seen {
			continue
		}
		targets[h.Ticker] = normalized[h.Ticker]
		sum += normalized[h.Ticker]
	}

	if sum == 0 {
		// 权重全为0视为全部换回储备币。
		for ticker := range targets {
			targets[ticker] = 0
		}
		targets[reserve] = 1
		return targets
	}
	for ticker := range targets {
		targets[ticker] /= sum
	}

	minReserve = math.Max(0, math.Min(1, minReserve))
	if targets[reserve] < minReserve {
		scale := (1 - minReserve) / (1 - targets[reserve])
		for ticker := range targets {
			targets[ticker] *= scale
		}
		targets[reserve] = minReserve
	}
	return targets
}
