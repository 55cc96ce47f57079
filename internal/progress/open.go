package progress

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/datares-tracker/internal/common"
)

// MemoryDSN selects the in-memory store.
const MemoryDSN = "memory"

// Open picks a backend from cfg.DSN: "memory", a postgres:// URL, or a SQLite file path.
func Open(ctx context.Context, cfg common.ProgressConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := strings.TrimSpace(cfg.DSN)
	switch {
	case dsn == MemoryDSN:
		logger.Info("progress.open", "backend", "memory")
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, cfg, logger)
	case dsn == "":
		return nil, common.FatalConfigErrorf("progress dsn is empty")
	default:
		return OpenSQLite(ctx, dsn, logger)
	}
}

// OpenSQLite opens (creating if needed) a SQLite progress file.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, common.FatalConfigError("create progress dir", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, common.FatalConfigError("open sqlite progress file", err)
	}
	// one connection: SQLite allows a single writer
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, common.FatalConfigError("configure sqlite: "+pragma, err)
		}
	}

	s, err := newSQLStore(ctx, entsql.OpenDB(dialect.SQLite, db), nil, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("progress.open", "backend", "sqlite", "path", path)
	return s, nil
}

// OpenPostgres creates a pgx pool, wraps it for the ent driver and prepares the table.
func OpenPostgres(ctx context.Context, cfg common.ProgressConfig, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, common.FatalConfigError("parse postgres dsn", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "datares-tracker"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 3 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, common.FatalConfigError("connect postgres", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, common.FatalConfigError("ping postgres", err)
	}

	drv := entsql.OpenDB(dialect.Postgres, stdlib.OpenDBFromPool(pool))
	s, err := newSQLStore(ctx, drv, pool.Close, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("progress.open", "backend", "postgres", "host", pc.ConnConfig.Host, "database", pc.ConnConfig.Database)
	return s, nil
}
