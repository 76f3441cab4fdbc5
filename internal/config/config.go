package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "rebalancer"
	envFile           = ".env"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv 将 .env 中的密钥注入进程环境，文件不存在时忽略。
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("检查 %s 失败: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("加载 %s 失败: %w", path, err)
	}
	return nil
}

// normalize 统一币种大小写，viper 会将 map 键转为小写。
func (c *Config) normalize() {
	c.Rebalance.Reserve = strings.ToUpper(strings.TrimSpace(c.Rebalance.Reserve))

	weights := make(map[string]float64, len(c.Rebalance.Weights))
	for ticker, weight := range c.Rebalance.Weights {
		weights[strings.ToUpper(strings.TrimSpace(ticker))] += weight
	}
	c.Rebalance.Weights = weights

	coins := make([]string, 0, len(c.Ingest.Coins))
	for _, coin := range c.Ingest.Coins {
		if coin = strings.ToUpper(strings.TrimSpace(coin)); coin != "" {
			coins = append(coins, coin)
		}
	}
	c.Ingest.Coins = coins
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")
	v.SetDefault("exchange.breaker.consecutive_failures", 5)
	v.SetDefault("exchange.breaker.interval", "1m")
	v.SetDefault("exchange.breaker.timeout", "30s")
	v.SetDefault("exchange.rate_limit.requests_per_second", 5)
	v.SetDefault("exchange.rate_limit.burst", 5)

	v.SetDefault("rebalance.reserve", "BTC")
	v.SetDefault("rebalance.trade_basement", 0.01)
	v.SetDefault("rebalance.min_reserve", 0.1)
	v.SetDefault("rebalance.min_trade_value", 0.001)

	v.SetDefault("execution.dry_run", true)

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.default_start_epoch", 1500004800000)
	v.SetDefault("ingest.window_minutes", 10000)
	v.SetDefault("ingest.normalize_window", 10000)
	v.SetDefault("ingest.retry.max_attempts", 5)
	v.SetDefault("ingest.retry.min_delay", "5s")
	v.SetDefault("ingest.retry.max_delay", "2m")

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "data/rebalancer.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)
	v.SetDefault("database.table_suffix", "binance_raw")
	v.SetDefault("database.batch_size", 10000)
	v.SetDefault("database.query_timeout", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.host", "smtp.gmail.com")
	v.SetDefault("notify.port", 465)

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.port", 9108)

	v.SetDefault("scheduler.rebalance", "")
	v.SetDefault("scheduler.ingest", "@daily")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
