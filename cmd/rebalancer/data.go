package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"coin-rebalancer/internal/candle"
	"coin-rebalancer/internal/indicator"
)

// timeRange 为数据类命令共享的时间范围参数。
type timeRange struct {
	start string
	end   string
}

func (r *timeRange) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.start, "start", "", "开始时间，毫秒时间戳或 RFC3339，默认结束前一天")
	cmd.Flags().StringVar(&r.end, "end", "", "结束时间，毫秒时间戳或 RFC3339，默认当前时间")
}

func (r *timeRange) resolve(now time.Time) (int64, int64, error) {
	end := now.UnixMilli()
	if r.end != "" {
		v, err := parseEpoch(r.end)
		if err != nil {
			return 0, 0, fmt.Errorf("--end: %w", err)
		}
		end = v
	}
	start := end - int64(24*time.Hour/time.Millisecond)
	if r.start != "" {
		v, err := parseEpoch(r.start)
		if err != nil {
			return 0, 0, fmt.Errorf("--start: %w", err)
		}
		start = v
	}
	if end < start {
		return 0, 0, errors.New("结束时间早于开始时间")
	}
	return candle.Align(start), candle.Align(end), nil
}

func parseEpoch(value string) (int64, error) {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return ms, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, fmt.Errorf("无法解析时间 %q", value)
	}
	return t.UnixMilli(), nil
}

func newIngestCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "增量更新一分钟K线并发送完成通知",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.services()
			if err != nil {
				return err
			}
			summary, err := svc.Ingest.Run(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "币种 %d，写入 %d 行，失败 %v\n", summary.Coins, summary.Rows, summary.Failed)
			return err
		},
	}
}

func newBackfillCmd(rt *runtime) *cobra.Command {
	var (
		coin string
		rng  timeRange
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "检测并补齐已存储序列中的缺口",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := rng.resolve(time.Now())
			if err != nil {
				return err
			}
			svc, err := rt.services()
			if err != nil {
				return err
			}
			result, err := svc.Pipeline.Backfill(cmd.Context(), strings.ToUpper(coin), start, end)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: 缺口 %d 段，补入 %d 行\n", result.Coin, len(result.Gaps), result.Rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&coin, "coin", "", "币种，如 ETH")
	_ = cmd.MarkFlagRequired("coin")
	rng.bind(cmd)
	return cmd
}

func newGapsCmd(rt *runtime) *cobra.Command {
	var (
		coin string
		rng  timeRange
	)
	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "列出已存储序列中的缺口",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := rng.resolve(time.Now())
			if err != nil {
				return err
			}
			svc, err := rt.services()
			if err != nil {
				return err
			}
			gaps, err := svc.Pipeline.Gaps(cmd.Context(), strings.ToUpper(coin), start, end)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, g := range gaps {
				fmt.Fprintf(out, "%d\t%d\t%d\t%s\n", g.Start, g.End, g.Minutes(),
					time.UnixMilli(g.Start).UTC().Format(time.RFC3339))
			}
			fmt.Fprintf(out, "共 %d 段缺口\n", len(gaps))
			return nil
		},
	}
	cmd.Flags().StringVar(&coin, "coin", "", "币种，如 ETH")
	_ = cmd.MarkFlagRequired("coin")
	rng.bind(cmd)
	return cmd
}

func newSeriesCmd(rt *runtime) *cobra.Command {
	var (
		coins     []string
		columns   []string
		normalize bool
		rng       timeRange
	)
	cmd := &cobra.Command{
		Use:   "series",
		Short: "导出多币种归一化行情为 CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := rng.resolve(time.Now())
			if err != nil {
				return err
			}
			svc, err := rt.services()
			if err != nil {
				return err
			}
			upper := make([]string, 0, len(coins))
			for _, c := range coins {
				upper = append(upper, strings.ToUpper(strings.TrimSpace(c)))
			}

			table, err := svc.Dataset.Grab(cmd.Context(), upper, columns, start, end, rt.app.NormalizeOptions(normalize))
			if err != nil {
				return err
			}
			return writeTable(cmd, table)
		},
	}
	cmd.Flags().StringSliceVar(&coins, "coins", nil, "币种列表，逗号分隔")
	cmd.Flags().StringSliceVar(&columns, "columns", []string{indicator.ColumnOpenTime, indicator.ColumnReturn, indicator.ColumnSpread, indicator.ColumnVolume}, "输出列")
	cmd.Flags().BoolVar(&normalize, "normalize", true, "对 spread 与 volume 做滚动 z-score")
	_ = cmd.MarkFlagRequired("coins")
	rng.bind(cmd)
	return cmd
}

func writeTable(cmd *cobra.Command, table indicator.Table) error {
	w := csv.NewWriter(cmd.OutOrStdout())
	if err := w.Write(table.Columns); err != nil {
		return err
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, v := range row {
			switch {
			case math.IsNaN(v):
				record[i] = ""
			case table.Columns[i] == indicator.ColumnOpenTime:
				record[i] = strconv.FormatInt(int64(v), 10)
			default:
				record[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
