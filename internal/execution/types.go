package execution

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"coin-rebalancer/internal/rebalance"
)

// OrderSide 表示下单方向。
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// SideOf 根据数量符号判断方向，正数为买入。
func SideOf(quantity float64) OrderSide {
	if quantity < 0 {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Status 为单笔交易的执行状态。
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusSimulated Status = "simulated"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome 记录单个资产的执行结果。
type Outcome struct {
	Ticker    string    `json:"ticker"`
	Market    string    `json:"market"`
	Side      OrderSide `json:"side"`
	Planned   float64   `json:"planned_quantity"`
	Quantity  float64   `json:"quantity"`
	Status    Status    `json:"status"`
	OrderID   string    `json:"order_id,omitempty"`
	Cancelled int       `json:"cancelled_orders"`
	Reason    string    `json:"reason,omitempty"`
	Err       error     `json:"-"`
}

// Report 为一次执行的汇总，Trades 包含全部尝试过的交易，无论结果如何。
type Report struct {
	Trades     []rebalance.Entry `json:"trades"`
	Outcomes   []Outcome         `json:"outcomes"`
	DryRun     bool              `json:"dry_run"`
	ExecutedAt time.Time         `json:"executed_at"`
}

// Count 返回指定状态的交易数量。
func (r Report) Count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Err 合并所有失败交易的错误，全部成功时返回 nil。
func (r Report) Err() error {
	var err error
	for _, o := range r.Outcomes {
		if o.Status != StatusFailed {
			continue
		}
		cause := o.Err
		if cause == nil {
			cause = fmt.Errorf("%s", o.Reason)
		}
		err = multierr.Append(err, fmt.Errorf("%s: %w", o.Market, cause))
	}
	return err
}
