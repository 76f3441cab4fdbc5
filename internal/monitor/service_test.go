package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coin-rebalancer/internal/config"
	"coin-rebalancer/internal/execution"
	"coin-rebalancer/internal/ingest"
	"coin-rebalancer/internal/portfolio"
	"coin-rebalancer/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(config.DatabaseConfig{Driver: store.DriverSQLite, InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, nil)
	require.NoError(t, err)
	return svc
}

func TestNewService_RequiresStore(t *testing.T) {
	_, err := NewService(nil, nil)
	require.Error(t, err)
}

func TestService_RecordAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	holdings := []portfolio.Holding{
		{Ticker: "BTC", Market: "BTC", Price: 1, Balance: 2},
		{Ticker: "ETH", Market: "ETH/BTC", Price: 0.05, Balance: 10},
	}
	svc.RecordHoldings(ctx, "BTC", holdings)
	svc.RecordIngestion(ctx, ingest.Summary{Coins: 3, Rows: 42})
	svc.RecordError(ctx, "调仓失败", errors.New("boom"), map[string]interface{}{"ticker": "ETH"})

	events, err := svc.ListEvents(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, EventIngestion, events[1].Type)
	assert.Equal(t, EventHoldings, events[2].Type)

	var payload HoldingsPayload
	raw, ok := events[2].Payload.(json.RawMessage)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.InDelta(t, 2.5, payload.TotalValue, 1e-12)
	assert.InDelta(t, 0.8, payload.Allocation["BTC"], 1e-12)
	assert.Len(t, payload.Holdings, 2)

	var errPayload ErrorPayload
	require.NoError(t, json.Unmarshal(events[0].Payload.(json.RawMessage), &errPayload))
	assert.Equal(t, "boom", errPayload.Error)
}

func TestService_ListByTypeAndLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.RecordExecution(ctx, execution.Report{
			DryRun:     true,
			ExecutedAt: time.Now().UTC(),
			Outcomes: []execution.Outcome{
				{Ticker: "ETH", Status: execution.StatusFailed, Reason: "余额不足"},
			},
		})
	}
	svc.RecordIngestion(ctx, ingest.Summary{})

	events, err := svc.ListEvents(ctx, EventExecution, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	var payload ExecutionPayload
	require.NoError(t, json.Unmarshal(events[0].Payload.(json.RawMessage), &payload))
	assert.True(t, payload.Report.DryRun)
	require.Len(t, payload.Errors, 1)
	assert.Contains(t, payload.Errors[0], "余额不足")
}
