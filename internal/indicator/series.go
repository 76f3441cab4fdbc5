package indicator

import (
	"math"
	"sort"

	"coin-rebalancer/internal/candle"
)

// Series 将K线数据拆分为便于指标计算的列序列。
type Series struct {
	OpenTime                 []float64
	CloseTime                []float64
	NumTrades                []float64
	Open                     []float64
	High                     []float64
	Low                      []float64
	Close                    []float64
	Volume                   []float64
	QuoteAssetVolume         []float64
	TakerBuyBaseAssetVolume  []float64
	TakerBuyQuoteAssetVolume []float64
}

// NewSeries 从K线创建 Series，按开盘时间升序排列，不修改输入。
func NewSeries(candles []candle.Candle) Series {
	ordered := make([]candle.Candle, len(candles))
	copy(ordered, candles)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].OpenTime < ordered[j].OpenTime })

	length := len(ordered)
	series := Series{
		OpenTime:                 make([]float64, length),
		CloseTime:                make([]float64, length),
		NumTrades:                make([]float64, length),
		Open:                     make([]float64, length),
		High:                     make([]float64, length),
		Low:                      make([]float64, length),
		Close:                    make([]float64, length),
		Volume:                   make([]float64, length),
		QuoteAssetVolume:         make([]float64, length),
		TakerBuyBaseAssetVolume:  make([]float64, length),
		TakerBuyQuoteAssetVolume: make([]float64, length),
	}

	for i, c := range ordered {
		series.OpenTime[i] = float64(c.OpenTime)
		series.CloseTime[i] = float64(c.CloseTime)
		series.NumTrades[i] = float64(c.NumTrades)
		series.Open[i] = c.Open
		series.High[i] = c.High
		series.Low[i] = c.Low
		series.Close[i] = c.Close
		series.Volume[i] = c.Volume
		series.QuoteAssetVolume[i] = c.QuoteAssetVolume
		series.TakerBuyBaseAssetVolume[i] = c.TakerBuyBaseAssetVolume
		series.TakerBuyQuoteAssetVolume[i] = c.TakerBuyQuoteAssetVolume
	}

	return series
}

// Len 返回序列长度。
func (s Series) Len() int {
	return len(s.OpenTime)
}

// raw 返回原始列，未知列返回 false。
func (s Series) raw(column string) ([]float64, bool) {
	switch column {
	case ColumnOpenTime:
		return s.OpenTime, true
	case ColumnCloseTime:
		return s.CloseTime, true
	case ColumnNumTrades:
		return s.NumTrades, true
	case ColumnOpen:
		return s.Open, true
	case ColumnHigh:
		return s.High, true
	case ColumnLow:
		return s.Low, true
	case ColumnClose:
		return s.Close, true
	case ColumnVolume:
		return s.Volume, true
	case ColumnQuoteAssetVolume:
		return s.QuoteAssetVolume, true
	case ColumnTakerBuyBase:
		return s.TakerBuyBaseAssetVolume, true
	case ColumnTakerBuyQuote:
		return s.TakerBuyQuoteAssetVolume, true
	}
	return nil, false
}

// Last 返回序列最后一个值，若为空则返回 NaN。
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// SafeDivide 除法保护，除数为0时返回0。
func SafeDivide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
