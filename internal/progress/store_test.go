package progress

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/datares-tracker/constants"
	"github.com/joseph-ayodele/datares-tracker/internal/common"
	"github.com/joseph-ayodele/datares-tracker/internal/entity"
)

func entry(id string, st constants.ProgressStatus) entity.ProgressEntry {
	return entity.ProgressEntry{
		Identity:    id,
		URL:         "https://static.cninfo.com.cn/finalpage/" + id + ".PDF",
		Status:      st,
		Attempts:    1,
		LastAttempt: time.Date(2025, 4, 1, 8, 30, 0, 0, time.UTC),
	}
}

func backends(t *testing.T) map[string]func() Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "progress.db")
	return map[string]func() Store{
		"memory": func() Store { return NewMemory() },
		"sqlite": func() Store {
			s, err := OpenSQLite(context.Background(), path, nil)
			require.NoError(t, err)
			return s
		},
	}
}

func TestStoreRecordAndLoad(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open()
			defer func() { _ = s.Close() }()

			require.NoError(t, s.Record(ctx, entry("000001.SZ|2025-03-15|annual", constants.StatusInFlight)))
			failed := entry("600000.SH|2025-03-29|annual", constants.StatusFailed)
			failed.Reason = "status 404"
			failed.Attempts = 3
			failed.Retried = true
			require.NoError(t, s.Record(ctx, failed))

			// upsert overwrites
			done := entry("000001.SZ|2025-03-15|annual", constants.StatusDone)
			done.Attempts = 2
			amount := entity.Amount{Fen: 123456789}
			addition := entity.Amount{Fen: -50000}
			done.Facts = []entity.Fact{{
				StockCode:    "000001.SZ",
				CompanyName:  "平安银行",
				ReportName:   "2024年年度报告",
				ReportDate:   "2025-03-15",
				Item:         constants.Inventory,
				Amount:       &amount,
				HasDataAsset: true,
				Addition:     &addition,
				URL:          done.URL,
			}}
			require.NoError(t, s.Record(ctx, done))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, done, got[done.Identity])
			assert.Equal(t, failed, got[failed.Identity])

			counts := Counts(got)
			assert.Equal(t, 1, counts[constants.StatusDone])
			assert.Equal(t, 1, counts[constants.StatusFailed])
			assert.Equal(t, []entity.ProgressEntry{failed}, Failed(got))
		})
	}
}

func TestStoreRejectsEmptyIdentity(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer func() { _ = s.Close() }()
			assert.Error(t, s.Record(context.Background(), entity.ProgressEntry{Status: constants.StatusDone}))
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "progress.db")

	s, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, entry("a", constants.StatusDone)))
	require.NoError(t, s.Record(ctx, entry("b", constants.StatusInFlight)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusDone, got["a"].Status)
	assert.Equal(t, constants.StatusInFlight, got["b"].Status)
}

func TestSQLiteCreatesTable(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "fresh.db"), nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Equal(t, "sqlite3", s.Dialect())

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.migrate(ctx), "table creation must be repeatable")

	e := entry("600000.SH|2025-03-29|annual", constants.StatusFailed)
	e.Reason = "status 404"
	e.Retried = true
	amt := entity.AmountFromFloat(12.5)
	e.Facts = []entity.Fact{{Item: constants.Inventory, Amount: &amt}}
	require.NoError(t, s.Record(ctx, e))

	got, err = s.Load(ctx)
	require.NoError(t, err)
	row := got[e.Identity]
	assert.Equal(t, "status 404", row.Reason)
	assert.True(t, row.Retried)
	assert.Equal(t, e.LastAttempt, row.LastAttempt)
	require.Len(t, row.Facts, 1)
	require.NotNil(t, row.Facts[0].Amount)
	assert.Equal(t, "12.50", row.Facts[0].Amount.String())
}

func TestSQLiteConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "progress.db"), nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			assert.NoError(t, s.Record(ctx, entry(id, constants.StatusDone)))
		}(i)
	}
	wg.Wait()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, common.ProgressConfig{DSN: MemoryDSN}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, common.ProgressConfig{DSN: filepath.Join(t.TempDir(), "p.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, common.ProgressConfig{DSN: "  "}, nil)
	assert.ErrorIs(t, err, common.ErrFatalConfig)

	_, err = Open(ctx, common.ProgressConfig{DSN: "postgres://%zz"}, nil)
	assert.ErrorIs(t, err, common.ErrFatalConfig)
}
