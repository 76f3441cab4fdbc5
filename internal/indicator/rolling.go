package indicator

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

const (
	// cancellationRatio 为滑动更新后平方和相对峰值的下限，低于它时整窗重算。
	cancellationRatio = 1e-8
	// zeroStdRatio 以内的标准差视为窗口内数值相同。
	zeroStdRatio = 1e-12
)

// RollingZScore 计算尾随窗口内的 z-score：(x - 均值) / 样本标准差。
// 返回值与输入等长，valid[i] 为 false 表示该行窗口不完整或标准差为0。
func RollingZScore(values []float64, window int) ([]float64, []bool, error) {
	if window < 2 {
		return nil, nil, fmt.Errorf("indicator: 滚动窗口至少为2，当前 %d", window)
	}

	out := make([]float64, len(values))
	valid := make([]bool, len(values))
	if len(values) < window {
		return out, valid, nil
	}

	sma := talib.Sma(values, window)
	n := float64(window)

	var (
		mean, m2, peak float64
		since          int
	)
	recompute := func(i int) {
		mean, m2 = windowMoments(values[i-window+1 : i+1])
		peak = m2
		since = 0
	}

	for i := window - 1; i < len(values); i++ {
		if i == window-1 {
			recompute(i)
		} else {
			old, x := values[i-window], values[i]
			prev := mean
			mean += (x - old) / n
			m2 += (x - old) * (x - mean + old - prev)
			since++
			// 大值滑出窗口后平方和相减会丢失精度，此时改用两遍法重算。
			if since >= window || m2 <= peak*cancellationRatio {
				recompute(i)
			} else {
				peak = math.Max(peak, m2)
			}
		}

		sd := math.Sqrt(math.Max(m2, 0) / (n - 1))
		if sd == 0 || math.IsNaN(sd) || sd <= zeroStdRatio*math.Abs(mean) {
			continue
		}
		out[i] = (values[i] - sma[i]) / sd
		valid[i] = true
	}

	return out, valid, nil
}

// windowMoments 返回窗口均值与离差平方和。
func windowMoments(window []float64) (float64, float64) {
	mean, variance := stat.MeanVariance(window, nil)
	return mean, variance * float64(len(window)-1)
}
