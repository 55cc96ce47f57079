package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

const tableName = "progress_entries"

var errEmptyIdentity = errors.New("progress entry has empty identity")

var columns = []string{"identity", "url", "status", "reason", "attempts", "retried", "last_attempt_ms", "facts"}

// SQLStore keeps progress entries in one table, upserted by identity.
type SQLStore struct {
	drv     *entsql.Driver
	dialect string
	closer  func()
	mu      sync.Mutex
	logger  *slog.Logger
}

func newSQLStore(ctx context.Context, drv *entsql.Driver, closer func(), logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLStore{drv: drv, dialect: drv.Dialect(), closer: closer, logger: logger}
	if err := s.migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// progressDDL is valid for both SQLite and Postgres.
const progressDDL = `CREATE TABLE IF NOT EXISTS ` + tableName + ` (
	identity        TEXT    NOT NULL PRIMARY KEY,
	url             TEXT    NOT NULL DEFAULT '',
	status          TEXT    NOT NULL,
	reason          TEXT    NOT NULL DEFAULT '',
	attempts        INTEGER NOT NULL DEFAULT 0,
	retried         INTEGER NOT NULL DEFAULT 0,
	last_attempt_ms BIGINT  NOT NULL DEFAULT 0,
	facts           TEXT    NOT NULL DEFAULT ''
)`

func (s *SQLStore) migrate(ctx context.Context) error {
	if err := s.drv.Exec(ctx, progressDDL, []any{}, nil); err != nil {
		return common.DatabaseError("create progress table", err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) (map[string]entity.ProgressEntry, error) {
	q, args := entsql.Dialect(s.dialect).
		Select(columns...).
		From(entsql.Table(tableName)).
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, common.DatabaseError("query progress", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]entity.ProgressEntry)
	for rows.Next() {
		var (
			e             entity.ProgressEntry
			status        string
			attempts      int64
			retried       int64
			lastAttemptMS int64
			facts         string
		)
		if err := rows.Scan(&e.Identity, &e.URL, &status, &e.Reason, &attempts, &retried, &lastAttemptMS, &facts); err != nil {
			return nil, common.DatabaseError("scan progress row", err)
		}
		st, ok := constants.ParseProgressStatus(status)
		if !ok {
			s.logger.Warn("progress.load.unknown_status", "identity", e.Identity, "status", status)
			st = constants.StatusPending
		}
		e.Status = st
		e.Attempts = int(attempts)
		e.Retried = retried != 0
		if lastAttemptMS > 0 {
			e.LastAttempt = time.UnixMilli(lastAttemptMS).UTC()
		}
		if facts != "" {
			if err := json.Unmarshal([]byte(facts), &e.Facts); err != nil {
				s.logger.Warn("progress.load.bad_facts", "identity", e.Identity, "error", err)
				// without its facts a Done entry cannot be replayed
				e.Status = constants.StatusPending
			}
		}
		out[e.Identity] = e
	}
	if err := rows.Err(); err != nil {
		return nil, common.DatabaseError("iterate progress rows", err)
	}
	return out, nil
}

// Record upserts e. Writes are serialized so SQLite never sees concurrent writers.
func (s *SQLStore) Record(ctx context.Context, e entity.ProgressEntry) error {
	if e.Identity == "" {
		return errEmptyIdentity
	}
	var lastMS int64
	if !e.LastAttempt.IsZero() {
		lastMS = e.LastAttempt.UnixMilli()
	}
	retried := 0
	if e.Retried {
		retried = 1
	}
	var facts string
	if len(e.Facts) > 0 {
		b, err := json.Marshal(e.Facts)
		if err != nil {
			return fmt.Errorf("encode facts for %s: %w", e.Identity, err)
		}
		facts = string(b)
	}
	q, args := entsql.Dialect(s.dialect).
		Insert(tableName).
		Columns(columns...).
		Values(e.Identity, e.URL, string(e.Status), e.Reason, e.Attempts, retried, lastMS, facts).
		OnConflict(
			entsql.ConflictColumns("identity"),
			entsql.ResolveWithNewValues(),
		).
		Query()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.drv.Exec(ctx, q, args, nil); err != nil {
		return common.DatabaseError(fmt.Sprintf("record %s", e.Identity), err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	err := s.drv.Close()
	if s.closer != nil {
		s.closer()
	}
	return err
}

// Dialect reports the SQL dialect in use.
func (s *SQLStore) Dialect() string { return s.dialect }

var _ Store = (*SQLStore)(nil)
var _ Store = (*Memory)(nil)
