package candle

import "sort"

// Gap 表示一段连续缺失的分钟区间，首尾均包含在内。
type Gap struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Minutes 返回缺失的分钟数。
func (g Gap) Minutes() int64 {
	if g.End < g.Start {
		return 0
	}
	return (g.End-g.Start)/Interval + 1
}

// FindGaps 按开盘时间降序扫描K线，每段缺失只记录一个 Gap，结果同样按降序排列。
// 输入不会被修改，重复的开盘时间会被忽略。
func FindGaps(candles []Candle) []Gap {
	if len(candles) < 2 {
		return nil
	}

	times := make([]int64, len(candles))
	for i, c := range candles {
		times[i] = c.OpenTime
	}
	sort.Slice(times, func(i, j int) bool { return times[i] > times[j] })

	var gaps []Gap
	for i := 1; i < len(times); i++ {
		later, earlier := times[i-1], times[i]
		if later-earlier > Interval {
			gaps = append(gaps, Gap{Start: earlier + Interval, End: later - Interval})
		}
	}
	return gaps
}
