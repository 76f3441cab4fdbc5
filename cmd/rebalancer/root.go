package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"coin-rebalancer/internal/app"
	"coin-rebalancer/internal/config"
	"coin-rebalancer/internal/log"
	"coin-rebalancer/internal/store"
)

// runtime 持有单次命令执行期间的共享依赖。
type runtime struct {
	configPath string

	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	app    *app.App
}

func newRootCmd(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "rebalancer",
		Short:         "加密货币组合调仓与行情入库工具",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.open()
		},
	}
	root.PersistentFlags().StringVar(&rt.configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")

	root.AddCommand(
		newRunCmd(rt),
		newRebalanceCmd(rt),
		newLiquidateCmd(rt),
		newPositionsCmd(rt),
		newIngestCmd(rt),
		newBackfillCmd(rt),
		newGapsCmd(rt),
		newSeriesCmd(rt),
	)
	return root
}

func (rt *runtime) open() error {
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		_ = logger.Sync()
		return fmt.Errorf("初始化数据库失败: %w", err)
	}

	rt.cfg = cfg
	rt.logger = logger
	rt.store = st
	rt.app = app.New(cfg, logger, st)
	return nil
}

func (rt *runtime) close() {
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("关闭数据库失败", zap.Error(err))
		}
	}
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
}

func (rt *runtime) services() (*app.Services, error) {
	return rt.app.Services()
}
