package candle

import "time"

// Interval 为一分钟K线的毫秒间隔。
const Interval int64 = 60000

// Candle 代表单根一分钟K线，字段与行情表列一一对应。
type Candle struct {
	OpenTime                 int64   `db:"open_time" json:"open_time"`
	CloseTime                int64   `db:"close_time" json:"close_time"`
	Open                     float64 `db:"open" json:"open"`
	High                     float64 `db:"high" json:"high"`
	Low                      float64 `db:"low" json:"low"`
	Close                    float64 `db:"close" json:"close"`
	Volume                   float64 `db:"volume" json:"volume"`
	QuoteAssetVolume         float64 `db:"quote_asset_volume" json:"quote_asset_volume"`
	NumTrades                int64   `db:"num_trades" json:"num_trades"`
	TakerBuyBaseAssetVolume  float64 `db:"taker_buy_base_asset_volume" json:"taker_buy_base_asset_volume"`
	TakerBuyQuoteAssetVolume float64 `db:"taker_buy_quote_asset_volume" json:"taker_buy_quote_asset_volume"`
	Coin                     string  `db:"coin" json:"coin"`
}

// OpenAt 返回开盘时间。
func (c Candle) OpenAt() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// CloseTimeFor 返回给定开盘时间对应的收盘时间。
func CloseTimeFor(openTime int64) int64 {
	return openTime + Interval - 1
}

// Align 将毫秒时间向下取整到分钟。
func Align(epoch int64) int64 {
	if epoch < 0 {
		return epoch - (Interval+epoch%Interval)%Interval
	}
	return epoch - epoch%Interval
}
