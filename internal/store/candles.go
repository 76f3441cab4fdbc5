package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"coin-rebalancer/internal/candle"
	"coin-rebalancer/internal/config"
)

const (
	// DefaultLastOpenTime 为表中没有数据时的起始开盘时间（2017-07-14）。
	DefaultLastOpenTime int64 = 1500004800000
	defaultBatchSize          = 10000
	defaultQueryTimeout       = 30 * time.Second
	defaultTableSuffix        = "binance_raw"
)

var coinPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ErrInvalidCoin 表示币种名称无法用于表名。
var ErrInvalidCoin = errors.New("store: 非法币种名称")

const candleColumns = `open_time, close_time, open, high, low, close, volume,
	quote_asset_volume, num_trades, taker_buy_base_asset_volume, taker_buy_quote_asset_volume, coin`

// CandleRepo 按币种分表存储一分钟K线，只追加不更新。
type CandleRepo struct {
	store     *Store
	suffix    string
	batchSize int
	timeout   time.Duration
	logger    *zap.Logger
}

// NewCandleRepo 创建K线仓库。
func NewCandleRepo(store *Store, cfg config.DatabaseConfig, logger *zap.Logger) *CandleRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	suffix := strings.TrimSpace(cfg.TableSuffix)
	if suffix == "" {
		suffix = defaultTableSuffix
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &CandleRepo{
		store:     store,
		suffix:    suffix,
		batchSize: batch,
		timeout:   timeout,
		logger:    logger,
	}
}

// TableName 返回币种对应的表名，形如 btc_binance_raw。
func (r *CandleRepo) TableName(coin string) (string, error) {
	if !coinPattern.MatchString(coin) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCoin, coin)
	}
	return strings.ToLower(coin) + "_" + r.suffix, nil
}

// quotedTable 返回加双引号的表名，数字开头的币种（如 1INCH）也是合法标识符。
func (r *CandleRepo) quotedTable(coin string) (string, error) {
	table, err := r.TableName(coin)
	if err != nil {
		return "", err
	}
	return `"` + strings.ReplaceAll(table, `"`, `""`) + `"`, nil
}

// Ensure 在表不存在时创建。
func (r *CandleRepo) Ensure(ctx context.Context, coin string) error {
	table, err := r.quotedTable(coin)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		open_time BIGINT PRIMARY KEY,
		close_time BIGINT NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		quote_asset_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		num_trades BIGINT NOT NULL DEFAULT 0,
		taker_buy_base_asset_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		taker_buy_quote_asset_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		coin TEXT NOT NULL
	)`, table)

	if _, err := r.store.DB().ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: 创建行情表 %s 失败: %w", table, err)
	}
	return nil
}

// LastOpenTime 返回表中最新的开盘时间，表为空时返回 fallback。
func (r *CandleRepo) LastOpenTime(ctx context.Context, coin string, fallback int64) (int64, error) {
	table, err := r.quotedTable(coin)
	if err != nil {
		return 0, err
	}
	if err := r.Ensure(ctx, coin); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var last sql.NullInt64
	if err := r.store.DB().GetContext(ctx, &last, fmt.Sprintf("SELECT MAX(open_time) FROM %s", table)); err != nil {
		return 0, fmt.Errorf("store: 查询 %s 最新开盘时间失败: %w", table, err)
	}
	if !last.Valid {
		return fallback, nil
	}
	return last.Int64, nil
}

// Query 返回 [start, end] 范围内的K线，按开盘时间升序。
func (r *CandleRepo) Query(ctx context.Context, coin string, start, end int64) ([]candle.Candle, error) {
	table, err := r.quotedTable(coin)
	if err != nil {
		return nil, err
	}
	if err := r.Ensure(ctx, coin); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	db := r.store.DB()
	query := db.Rebind(fmt.Sprintf(
		"SELECT %s FROM %s WHERE open_time >= ? AND open_time <= ? ORDER BY open_time ASC",
		candleColumns, table,
	))

	var candles []candle.Candle
	if err := db.SelectContext(ctx, &candles, query, start, end); err != nil {
		return nil, fmt.Errorf("store: 查询 %s 行情失败: %w", table, err)
	}
	return candles, nil
}

// Append 按批次写入K线，已存在的开盘时间会被跳过，返回实际写入的行数。
// 每个批次使用独立事务，失败时已提交的批次不会回滚。
func (r *CandleRepo) Append(ctx context.Context, coin string, candles []candle.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	table, err := r.quotedTable(coin)
	if err != nil {
		return 0, err
	}
	if err := r.Ensure(ctx, coin); err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(candles); start += r.batchSize {
		end := start + r.batchSize
		if end > len(candles) {
			end = len(candles)
		}
		n, err := r.insertBatch(ctx, table, coin, candles[start:end])
		written += n
		if err != nil {
			return written, err
		}
		r.logger.Debug("行情批次写入完成",
			zap.String("table", table),
			zap.Int("rows", n),
			zap.Int("offset", start),
		)
	}
	return written, nil
}

func (r *CandleRepo) insertBatch(ctx context.Context, table, coin string, batch []candle.Candle) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(batch)/1000+1))
	defer cancel()

	db := r.store.DB()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: 开启事务失败: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, db.Rebind(fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (open_time) DO NOTHING`,
		table, candleColumns,
	)))
	if err != nil {
		return 0, fmt.Errorf("store: 预编译写入语句失败: %w", err)
	}
	defer stmt.Close()

	written := 0
	upper := strings.ToUpper(coin)
	for _, c := range batch {
		res, err := stmt.ExecContext(ctx,
			c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume,
			c.QuoteAssetVolume, c.NumTrades, c.TakerBuyBaseAssetVolume, c.TakerBuyQuoteAssetVolume, upper,
		)
		if err != nil {
			return 0, fmt.Errorf("store: 写入 %s 开盘时间 %d 失败: %w", table, c.OpenTime, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: 提交事务失败: %w", err)
	}
	return written, nil
}
