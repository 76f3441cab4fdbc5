package monitor

import (
	"time"

	"coin-rebalancer/internal/execution"
	"coin-rebalancer/internal/ingest"
	"coin-rebalancer/internal/portfolio"
	"coin-rebalancer/internal/rebalance"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventHoldings      EventType = "holdings"
	EventRebalancePlan EventType = "rebalance_plan"
	EventExecution     EventType = "execution"
	EventIngestion     EventType = "ingestion"
	EventError         EventType = "error"
)

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// HoldingsPayload 记录持仓快照。
type HoldingsPayload struct {
	Reserve    string               `json:"reserve"`
	TotalValue float64              `json:"total_value"`
	Holdings   []portfolio.Holding  `json:"holdings"`
	Allocation portfolio.Allocation `json:"allocation"`
}

// PlanPayload 记录调仓计划。
type PlanPayload struct {
	Weights map[string]float64  `json:"weights"`
	Params  rebalance.Params    `json:"params"`
	Plan    rebalance.TradePlan `json:"plan"`
}

// ExecutionPayload 记录订单执行结果。
type ExecutionPayload struct {
	Report execution.Report `json:"report"`
	Errors []string         `json:"errors,omitempty"`
}

// IngestionPayload 记录行情入库结果。
type IngestionPayload struct {
	Summary ingest.Summary `json:"summary"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
