package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"coin-rebalancer/internal/config"
	"coin-rebalancer/internal/execution"
	"coin-rebalancer/internal/portfolio"
)

func newRunCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "以守护模式运行定时调仓与行情入库",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.app.Run(cmd.Context()); err != nil {
				return err
			}
			rt.logger.Info("系统已安全退出")
			return nil
		},
	}
}

func newRebalanceCmd(rt *runtime) *cobra.Command {
	var planOnly bool
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "按目标权重调仓",
		RunE: func(cmd *cobra.Command, _ []string) error {
			applyDryRun(cmd, &rt.cfg.Execution)
			svc, err := rt.services()
			if err != nil {
				return err
			}

			if planOnly {
				plan, err := svc.Rebalancer.Plan(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TICKER\tMARKET\tCURRENT\tTARGET\tFRACTION\tQUANTITY")
				for _, e := range plan.Entries {
					fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%+.4f\t%+.8f\n",
						e.Ticker, e.Market, e.CurrentShare, e.TargetShare, e.TradeFraction, e.TradeQuantity)
				}
				fmt.Fprintf(w, "\n总价值 %.8f %s，买单缩放 %.4f\n", plan.TotalValue, plan.Reserve, plan.BuyScale)
				return w.Flush()
			}

			report, err := svc.Rebalancer.Rebalance(cmd.Context())
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}
	bindDryRun(cmd)
	cmd.Flags().BoolVar(&planOnly, "plan", false, "只输出调仓计划")
	return cmd
}

func newLiquidateCmd(rt *runtime) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "liquidate",
		Short: "将全部资产卖回储备币",
		RunE: func(cmd *cobra.Command, _ []string) error {
			applyDryRun(cmd, &rt.cfg.Execution)
			if !rt.cfg.Execution.DryRun && !confirm {
				return errors.New("清仓会卖出全部资产，请追加 --yes 确认")
			}
			svc, err := rt.services()
			if err != nil {
				return err
			}
			report, err := svc.Rebalancer.Liquidate(cmd.Context())
			printReport(cmd.OutOrStdout(), report)
			if err != nil {
				rt.logger.Error("清仓未完全成功", zap.Error(err))
			}
			return err
		},
	}
	bindDryRun(cmd)
	cmd.Flags().BoolVar(&confirm, "yes", false, "确认真实清仓")
	return cmd
}

func newPositionsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "列出当前持仓及占比",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.services()
			if err != nil {
				return err
			}
			holdings, err := svc.Rebalancer.Positions(cmd.Context())
			if err != nil {
				return err
			}

			dist := portfolio.Distribution(holdings)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TICKER\tMARKET\tBALANCE\tPRICE\tVALUE\tSHARE")
			for _, h := range holdings {
				fmt.Fprintf(w, "%s\t%s\t%.8f\t%.8f\t%.8f\t%.2f%%\n",
					h.Ticker, h.Market, h.Balance, h.Price, h.Value(), dist[h.Ticker]*100)
			}
			fmt.Fprintf(w, "\n总价值 %.8f %s\n", portfolio.TotalValue(holdings), rt.cfg.Rebalance.Reserve)
			return w.Flush()
		},
	}
}

// bindDryRun 注册 --dry-run，未显式传入时沿用配置 execution.dry_run。
func bindDryRun(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "只模拟下单；未指定时沿用配置 execution.dry_run，--dry-run=false 为真实下单")
}

func applyDryRun(cmd *cobra.Command, cfg *config.ExecutionConfig) {
	if !cmd.Flags().Changed("dry-run") {
		return
	}
	if v, err := cmd.Flags().GetBool("dry-run"); err == nil {
		cfg.DryRun = v
	}
}

func printReport(out io.Writer, report execution.Report) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tSIDE\tPLANNED\tQUANTITY\tSTATUS\tORDER\tREASON")
	for _, o := range report.Outcomes {
		fmt.Fprintf(w, "%s\t%s\t%+.8f\t%.8f\t%s\t%s\t%s\n",
			o.Ticker, o.Side, o.Planned, o.Quantity, o.Status, o.OrderID, o.Reason)
	}
	_ = w.Flush()
}
