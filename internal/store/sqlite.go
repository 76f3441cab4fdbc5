package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"coin-rebalancer/internal/config"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store 封装数据库连接，支持 SQLite 与 PostgreSQL。
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open 根据配置初始化存储。
func Open(cfg config.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var (
		conn *sqlx.DB
		err  error
	)
	switch driver {
	case DriverSQLite:
		conn, err = openSQLite(cfg)
	case DriverPostgres:
		conn, err = sqlx.Open(DriverPostgres, cfg.DSN)
		if err != nil {
			err = fmt.Errorf("打开 PostgreSQL 数据库失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("store: 不支持的数据库驱动 %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 && !cfg.InMemory {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("store: 连接数据库失败: %w", err)
	}

	return &Store{db: conn, driver: driver}, nil
}

func openSQLite(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := cfg.Path
	if cfg.InMemory {
		dsn = ":memory:"
	} else if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
		return nil, err
	}

	conn, err := sqlx.Open(DriverSQLite, dsn+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 数据库失败: %w", err)
	}
	if cfg.InMemory {
		// 每个连接都是独立的内存库，只能保留一个连接。
		conn.SetMaxOpenConns(1)
	}

	if !cfg.InMemory {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("设置 SQLite WAL 模式失败: %w", err)
		}
	}

	if _, err := conn.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("设置 SQLite 同步级别失败: %w", err)
	}

	return conn, nil
}

// DB 返回底层 *sqlx.DB。
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Driver 返回当前数据库驱动名。
func (s *Store) Driver() string {
	return s.driver
}

// AutoIncrementKey 返回当前方言的自增主键定义。
func (s *Store) AutoIncrementKey() string {
	if s.driver == DriverPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("创建目录 %q 失败: %w", path, err)
	}
	return nil
}
