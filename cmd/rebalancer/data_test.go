package main

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"coin-rebalancer/internal/indicator"
)

func TestTimeRange_Resolve(t *testing.T) {
	now := time.UnixMilli(1_600_000_030_000)

	start, end, err := (&timeRange{}).resolve(now)
	if err != nil {
		t.Fatalf("resolve returned error: %v", err)
	}
	if end != 1_600_000_020_000 {
		t.Fatalf("end = %d, want aligned minute", end)
	}
	if end-start != 24*60*60_000 {
		t.Fatalf("default span = %d", end-start)
	}

	start, end, err = (&timeRange{start: "2020-01-01T00:00:30Z", end: "1577837100000"}).resolve(now)
	if err != nil {
		t.Fatalf("resolve returned error: %v", err)
	}
	if start != 1577836800000 || end != 1577837100000 {
		t.Fatalf("unexpected range %d..%d", start, end)
	}

	if _, _, err := (&timeRange{start: "1577837100000", end: "1577836800000"}).resolve(now); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, _, err := (&timeRange{start: "yesterday"}).resolve(now); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	table := indicator.Table{
		Columns: []string{"open_time", "return_ETH"},
		Rows: [][]float64{
			{1577836800000, 0.5},
			{1577836860000, math.NaN()},
		},
	}
	if err := writeTable(cmd, table); err != nil {
		t.Fatalf("writeTable returned error: %v", err)
	}

	want := "open_time,return_ETH\n1577836800000,0.5\n1577836860000,\n"
	if got := buf.String(); got != want {
		t.Fatalf("csv = %q, want %q", got, strings.TrimSpace(want))
	}
}
