package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"coin-rebalancer/internal/execution"
	"coin-rebalancer/internal/ingest"
	"coin-rebalancer/internal/portfolio"
	"coin-rebalancer/internal/rebalance"
	"coin-rebalancer/internal/store"
)

// Service 负责持久化监控事件。
type Service struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     st.DB(),
		logger: logger,
	}

	if err := s.initSchema(st.AutoIncrementKey()); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema(primaryKey string) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS monitor_events (
	id %s,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
)`, primaryKey),
		`CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("monitor: 初始化表失败: %w", err)
		}
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO monitor_events (event_type, payload, created_at) VALUES (?, ?, ?)`),
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// RecordHoldings 记录持仓快照。
func (s *Service) RecordHoldings(ctx context.Context, reserve string, holdings []portfolio.Holding) {
	s.record(ctx, EventHoldings, HoldingsPayload{
		Reserve:    reserve,
		TotalValue: portfolio.TotalValue(holdings),
		Holdings:   holdings,
		Allocation: portfolio.Distribution(holdings),
	}, "记录持仓事件失败")
}

// RecordPlan 记录调仓计划。
func (s *Service) RecordPlan(ctx context.Context, weights map[string]float64, params rebalance.Params, plan rebalance.TradePlan) {
	s.record(ctx, EventRebalancePlan, PlanPayload{
		Weights: weights,
		Params:  params,
		Plan:    plan,
	}, "记录调仓计划事件失败")
}

// RecordExecution 记录订单执行。
func (s *Service) RecordExecution(ctx context.Context, report execution.Report) {
	var errs []string
	for _, err := range multierr.Errors(report.Err()) {
		errs = append(errs, err.Error())
	}
	s.record(ctx, EventExecution, ExecutionPayload{Report: report, Errors: errs}, "记录执行事件失败")
}

// RecordIngestion 记录行情入库结果。
func (s *Service) RecordIngestion(ctx context.Context, summary ingest.Summary) {
	s.record(ctx, EventIngestion, IngestionPayload{Summary: summary}, "记录入库事件失败")
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Context: ctxMap,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	s.record(ctx, EventError, payload, "记录异常事件失败")
}

func (s *Service) record(ctx context.Context, typ EventType, payload interface{}, failMsg string) {
	if err := s.Record(ctx, Event{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); err != nil {
		s.logger.Warn(failMsg, zap.Error(err))
	}
}

// ListEvents 按类型检索最近事件。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM monitor_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var row struct {
			Type    string `db:"event_type"`
			Payload string `db:"payload"`
			Created string `db:"created_at"`
		}
		if scanErr := rows.StructScan(&row); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, row.Created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			Type:      EventType(row.Type),
			Timestamp: ts,
			Payload:   json.RawMessage(row.Payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}
