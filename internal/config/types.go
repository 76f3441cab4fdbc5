package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Rebalance RebalanceConfig `mapstructure:"rebalance"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string          `mapstructure:"name"`
	APIKey     string          `mapstructure:"api_key"`
	APISecret  string          `mapstructure:"api_secret"`
	APIPass    string          `mapstructure:"api_password"`
	UseSandbox bool            `mapstructure:"use_sandbox"`
	Retry      RetryConfig     `mapstructure:"retry"`
	Breaker    BreakerConfig   `mapstructure:"breaker"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// BreakerConfig 控制交易所调用熔断。
type BreakerConfig struct {
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig 限制历史K线分页请求频率。
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RebalanceConfig 描述目标权重与调仓约束。
type RebalanceConfig struct {
	Reserve       string             `mapstructure:"reserve"`
	Weights       map[string]float64 `mapstructure:"weights"`
	TradeBasement float64            `mapstructure:"trade_basement"`
	MinReserve    float64            `mapstructure:"min_reserve"`
	MinTradeValue float64            `mapstructure:"min_trade_value"`
}

// ExecutionConfig 控制下单行为。
type ExecutionConfig struct {
	DryRun bool `mapstructure:"dry_run"`
}

// IngestConfig 控制历史行情入库。
type IngestConfig struct {
	Coins             []string    `mapstructure:"coins"`
	Workers           int         `mapstructure:"workers"`
	DefaultStartEpoch int64       `mapstructure:"default_start_epoch"`
	WindowMinutes     int         `mapstructure:"window_minutes"`
	NormalizeWindow   int         `mapstructure:"normalize_window"`
	Retry             RetryConfig `mapstructure:"retry"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
	TableSuffix     string        `mapstructure:"table_suffix"`
	BatchSize       int           `mapstructure:"batch_size"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// NotifyConfig 描述邮件通知。
type NotifyConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Host       string   `mapstructure:"host"`
	Port       int      `mapstructure:"port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	From       string   `mapstructure:"from"`
	Recipients []string `mapstructure:"recipients"`
}

// MonitorConfig 控制监控接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SchedulerConfig 控制守护模式下的 cron 任务，留空表示不调度。
type SchedulerConfig struct {
	Rebalance string `mapstructure:"rebalance"`
	Ingest    string `mapstructure:"ingest"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	err = multierr.Append(err, validateRetry("exchange.retry", c.Exchange.Retry))
	if c.Exchange.Breaker.ConsecutiveFailures == 0 {
		err = multierr.Append(err, errors.New("exchange.breaker.consecutive_failures 必须大于0"))
	}
	if c.Exchange.Breaker.Timeout <= 0 {
		err = multierr.Append(err, errors.New("exchange.breaker.timeout 必须大于0"))
	}
	if c.Exchange.RateLimit.RequestsPerSecond <= 0 {
		err = multierr.Append(err, errors.New("exchange.rate_limit.requests_per_second 必须大于0"))
	}
	if c.Exchange.RateLimit.Burst <= 0 {
		err = multierr.Append(err, errors.New("exchange.rate_limit.burst 必须大于0"))
	}

	if strings.TrimSpace(c.Rebalance.Reserve) == "" {
		err = multierr.Append(err, errors.New("rebalance.reserve 不能为空"))
	}
	if c.Rebalance.TradeBasement < 0 || c.Rebalance.TradeBasement > 1 {
		err = multierr.Append(err, errors.New("rebalance.trade_basement 必须位于[0,1]"))
	}
	if c.Rebalance.MinReserve < 0 || c.Rebalance.MinReserve > 1 {
		err = multierr.Append(err, errors.New("rebalance.min_reserve 必须位于[0,1]"))
	}
	if c.Rebalance.MinTradeValue < 0 {
		err = multierr.Append(err, errors.New("rebalance.min_trade_value 不能为负"))
	}
	for ticker, weight := range c.Rebalance.Weights {
		if weight < 0 {
			err = multierr.Append(err, fmt.Errorf("rebalance.weights.%s 不能为负", ticker))
		}
	}

	if c.Ingest.Workers <= 0 {
		err = multierr.Append(err, errors.New("ingest.workers 必须大于0"))
	}
	if c.Ingest.DefaultStartEpoch < 0 {
		err = multierr.Append(err, errors.New("ingest.default_start_epoch 不能为负"))
	}
	if c.Ingest.WindowMinutes <= 0 {
		err = multierr.Append(err, errors.New("ingest.window_minutes 必须大于0"))
	}
	if c.Ingest.NormalizeWindow < 2 {
		err = multierr.Append(err, errors.New("ingest.normalize_window 至少为2"))
	}
	err = multierr.Append(err, validateRetry("ingest.retry", c.Ingest.Retry))

	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" && !c.Database.InMemory {
			err = multierr.Append(err, errors.New("database.path 不能为空"))
		}
	case "postgres":
		if c.Database.DSN == "" {
			err = multierr.Append(err, errors.New("postgres 需要配置 database.dsn"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("database.driver 不支持 %q", c.Database.Driver))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Database.TableSuffix == "" {
		err = multierr.Append(err, errors.New("database.table_suffix 不能为空"))
	}
	if c.Database.BatchSize <= 0 {
		err = multierr.Append(err, errors.New("database.batch_size 必须大于0"))
	}

	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if c.Notify.Enabled {
		if c.Notify.Host == "" || c.Notify.Port <= 0 {
			err = multierr.Append(err, errors.New("notify 需要配置 host 与 port"))
		}
		if c.Notify.From == "" {
			err = multierr.Append(err, errors.New("notify.from 不能为空"))
		}
		if len(c.Notify.Recipients) == 0 {
			err = multierr.Append(err, errors.New("notify.recipients 至少包含一个收件人"))
		}
	}

	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

func validateRetry(prefix string, r RetryConfig) error {
	var err error
	if r.MaxAttempts <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.max_attempts 必须大于0", prefix))
	}
	if r.MinDelay <= 0 || r.MaxDelay <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.delay 必须为正", prefix))
	}
	if r.MinDelay > r.MaxDelay {
		err = multierr.Append(err, fmt.Errorf("%s.min_delay 不能大于 max_delay", prefix))
	}
	return err
}
