package indicator

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"

	"coin-rebalancer/internal/candle"
)

func buildCandles(n int, fn func(i int) candle.Candle) []candle.Candle {
	out := make([]candle.Candle, n)
	for i := 0; i < n; i++ {
		c := fn(i)
		c.OpenTime = int64(i) * candle.Interval
		c.CloseTime = candle.CloseTimeFor(c.OpenTime)
		out[i] = c
	}
	return out
}

func TestNormalize_ZeroReturns(t *testing.T) {
	candles := buildCandles(20, func(i int) candle.Candle {
		p := 100 + float64(i)
		return candle.Candle{Open: p, Close: p, High: p + 1, Low: p - 1}
	})

	table, err := Normalize(candles, []string{ColumnReturn}, DefaultOptions())
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if table.Len() != 20 {
		t.Fatalf("expected 20 rows, got %d", table.Len())
	}
	for i, row := range table.Rows {
		if row[0] != 0 {
			t.Fatalf("row %d: expected zero return, got %v", i, row[0])
		}
	}
}

func TestNormalize_RawSpreadIsExact(t *testing.T) {
	candles := buildCandles(10, func(i int) candle.Candle {
		return candle.Candle{High: 10.5 + float64(i)*0.3, Low: 9.25 - float64(i)*0.1}
	})

	table, err := Normalize(candles, []string{ColumnSpread, ColumnOpenTime}, Options{Window: 5, Normalize: false})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if len(table.Columns) != 2 || table.Columns[0] != ColumnSpread || table.Columns[1] != ColumnOpenTime {
		t.Fatalf("unexpected columns: %v", table.Columns)
	}
	for i, row := range table.Rows {
		want := candles[i].High - candles[i].Low
		if row[0] != want {
			t.Fatalf("row %d: spread %v, want %v", i, row[0], want)
		}
		if row[1] != float64(candles[i].OpenTime) {
			t.Fatalf("row %d: open_time mismatch", i)
		}
	}
}

func TestNormalize_DropsWarmupRows(t *testing.T) {
	candles := buildCandles(12, func(i int) candle.Candle {
		return candle.Candle{Volume: float64(i*i) + 3}
	})

	table, err := Normalize(candles, []string{ColumnOpenTime, ColumnVolume}, Options{Window: 4, Normalize: true})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if table.Len() != 9 {
		t.Fatalf("expected 9 rows, got %d", table.Len())
	}
	if table.Rows[0][0] != float64(3*candle.Interval) {
		t.Fatalf("first row should start after warmup, got %v", table.Rows[0][0])
	}
}

func TestNormalize_ConstantVolumeIsDropped(t *testing.T) {
	candles := buildCandles(8, func(int) candle.Candle {
		return candle.Candle{Volume: 42}
	})

	table, err := Normalize(candles, []string{ColumnVolume}, Options{Window: 3, Normalize: true})
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if table.Len() != 0 {
		t.Fatalf("expected zero-std rows to be dropped, got %d", table.Len())
	}
}

func TestNormalize_ZeroOpenDropsReturn(t *testing.T) {
	candles := buildCandles(3, func(i int) candle.Candle {
		if i == 1 {
			return candle.Candle{Open: 0, Close: 5}
		}
		return candle.Candle{Open: 2, Close: 3}
	})

	table, err := Normalize(candles, []string{ColumnReturn}, DefaultOptions())
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", table.Len())
	}
	if table.Rows[0][0] != 0.5 {
		t.Fatalf("unexpected return %v", table.Rows[0][0])
	}
}

func TestNormalize_InvalidInput(t *testing.T) {
	candles := buildCandles(3, func(int) candle.Candle { return candle.Candle{} })

	if _, err := Normalize(candles, nil, DefaultOptions()); err == nil {
		t.Fatalf("expected error for empty column list")
	}
	if _, err := Normalize(candles, []string{"coin"}, DefaultOptions()); err == nil {
		t.Fatalf("expected error for unknown column")
	}
	if _, err := Normalize(candles, []string{ColumnSpread}, Options{Window: 1, Normalize: true}); err == nil {
		t.Fatalf("expected error for window below 2")
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	candles := buildCandles(5, func(i int) candle.Candle {
		return candle.Candle{High: 2, Low: 1, Volume: float64(i)}
	})
	candles[0], candles[4] = candles[4], candles[0]
	first := candles[0]

	if _, err := Normalize(candles, []string{ColumnOpenTime}, DefaultOptions()); err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if candles[0] != first {
		t.Fatalf("input slice was reordered")
	}
}

func TestRollingZScore_MatchesSampleStatistics(t *testing.T) {
	const window = 6
	values := make([]float64, 40)
	for i := range values {
		values[i] = 25000 + 300*math.Sin(float64(i)/3) + float64(i%5)
	}

	got, valid, err := RollingZScore(values, window)
	if err != nil {
		t.Fatalf("RollingZScore returned error: %v", err)
	}

	for i := range values {
		if i < window-1 {
			if valid[i] {
				t.Fatalf("row %d should be invalid", i)
			}
			continue
		}
		mean, std := stat.MeanStdDev(values[i-window+1:i+1], nil)
		want := (values[i] - mean) / std
		if !valid[i] || math.Abs(got[i]-want) > 1e-6 {
			t.Fatalf("row %d: got %v want %v", i, got[i], want)
		}
	}
}

func TestRollingZScore_QuietWindowsAfterSpike(t *testing.T) {
	const window = 100
	rng := rand.New(rand.NewSource(3))
	values := make([]float64, 3000)
	for i := range values {
		values[i] = 50 + 0.01*rng.Float64()
	}
	values[0] = 5e6

	got, valid, err := RollingZScore(values, window)
	if err != nil {
		t.Fatalf("RollingZScore returned error: %v", err)
	}

	for i := window; i < len(values); i++ {
		mean, std := stat.MeanStdDev(values[i-window+1:i+1], nil)
		want := (values[i] - mean) / std
		if !valid[i] {
			t.Fatalf("row %d dropped, want z=%v", i, want)
		}
		if math.Abs(got[i]-want) > 1e-5 {
			t.Fatalf("row %d: got %v want %v", i, got[i], want)
		}
	}
}

func TestRollingZScore_ConstantWindowAfterNoise(t *testing.T) {
	const window = 5
	values := []float64{3, 9, 1, 7, 4, 0.1, 0.1, 0.1, 0.1, 0.1, 0.1}

	_, valid, err := RollingZScore(values, window)
	if err != nil {
		t.Fatalf("RollingZScore returned error: %v", err)
	}
	if !valid[window-1] {
		t.Fatalf("first full window should be valid")
	}
	for i := 9; i < len(values); i++ {
		if valid[i] {
			t.Fatalf("row %d: constant window should be invalid", i)
		}
	}
}

func TestJoin_OuterJoinsOnOpenTime(t *testing.T) {
	btc := Table{
		Columns: []string{ColumnOpenTime, ColumnClose},
		Rows:    [][]float64{{0, 1}, {60000, 2}},
	}
	eth := Table{
		Columns: []string{ColumnClose, ColumnOpenTime},
		Rows:    [][]float64{{10, 60000}, {20, 120000}},
	}

	joined, err := Join(map[string]Table{"ETH": eth, "BTC": btc})
	if err != nil {
		t.Fatalf("Join returned error: %v", err)
	}

	wantCols := []string{ColumnOpenTime, "close_BTC", "close_ETH"}
	for i, name := range wantCols {
		if joined.Columns[i] != name {
			t.Fatalf("unexpected columns: %v", joined.Columns)
		}
	}
	if joined.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", joined.Len())
	}
	if !math.IsNaN(joined.Rows[0][2]) || joined.Rows[0][1] != 1 {
		t.Fatalf("unexpected first row: %v", joined.Rows[0])
	}
	if joined.Rows[1][1] != 2 || joined.Rows[1][2] != 10 {
		t.Fatalf("unexpected middle row: %v", joined.Rows[1])
	}
	if !math.IsNaN(joined.Rows[2][1]) || joined.Rows[2][2] != 20 {
		t.Fatalf("unexpected last row: %v", joined.Rows[2])
	}
}

func TestJoin_RequiresOpenTime(t *testing.T) {
	_, err := Join(map[string]Table{"BTC": {Columns: []string{ColumnClose}}})
	if err == nil {
		t.Fatalf("expected error when open_time is missing")
	}
}
