package api

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/green/recycling-ledger/workbook"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, a *testAPI, dir string) *BackupScheduler {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	bs := NewBackupScheduler(a.engine, dir, log)
	clock := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	bs.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return bs
}

func TestBackupScheduler_RunNow(t *testing.T) {
	// GIVEN: A seeded ledger and an empty backup dir
	a, _ := seeded(t)
	dir := filepath.Join(t.TempDir(), "backups")
	bs := newTestScheduler(t, a, dir)

	// WHEN: A backup runs
	run, err := bs.RunNow(context.Background())

	// THEN: The workbook holds the current state
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 1, run.Batches)
	assert.Equal(t, "backup-20250310-090100-001", run.ID)
	require.NotNil(t, run.CompletedAt)

	st, err := workbook.NewStore(run.Path).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.Partners, 2)
	assert.Len(t, st.Batches, 1)

	assert.Equal(t, []BackupRun{run}, bs.Runs())
}

func TestBackupScheduler_Prune(t *testing.T) {
	// GIVEN: A scheduler keeping two backups
	a, _ := seeded(t)
	dir := t.TempDir()
	bs := newTestScheduler(t, a, dir)
	bs.Keep = 2

	// WHEN: Four backups run
	var ids []string
	for i := 0; i < 4; i++ {
		run, err := bs.RunNow(context.Background())
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	// THEN: Only the newest two remain on disk
	files, err := filepath.Glob(filepath.Join(dir, "*.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, ids[2]+".xlsx"),
		filepath.Join(dir, ids[3]+".xlsx"),
	}, files)

	// AND: Every run is recorded, newest first
	runs := bs.Runs()
	require.Len(t, runs, 4)
	assert.Equal(t, ids[3], runs[0].ID)
}

func TestBackupScheduler_Failure(t *testing.T) {
	// GIVEN: A backup dir that is actually a file
	a, _ := seeded(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	bs := newTestScheduler(t, a, blocker)

	// WHEN: A backup runs
	run, err := bs.RunNow(context.Background())

	// THEN: The failure is returned and recorded
	require.Error(t, err)
	assert.Equal(t, "failed", run.Status)
	assert.NotEmpty(t, run.Error)
	assert.Empty(t, run.Path)
	assert.Equal(t, "failed", bs.Runs()[0].Status)
}

func TestBackupScheduler_StartStop(t *testing.T) {
	a, _ := seeded(t)
	bs := newTestScheduler(t, a, t.TempDir())
	bs.CheckInterval = time.Hour

	bs.Start()
	bs.Start()

	// the first backup runs right away
	require.Eventually(t, func() bool { return len(bs.Runs()) == 1 }, 5*time.Second, 10*time.Millisecond)

	bs.Stop()
	bs.Stop()
	assert.Len(t, bs.Runs(), 1)
}

func TestBackupHandlers(t *testing.T) {
	a, _ := seeded(t)

	t.Run("disabled", func(t *testing.T) {
		rec := a.do(t, http.MethodGet, "/api/backups", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	// GIVEN: A handler with backups enabled
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := NewHandler(a.engine, log)
	h.Backups = newTestScheduler(t, a, t.TempDir())
	a.router = NewRouter(h)

	// WHEN: A backup is triggered
	rec := a.do(t, http.MethodPost, "/api/backups", nil)

	// THEN: It is written and listed
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "completed", decodeBody[BackupRun](t, rec).Status)

	rec = a.do(t, http.MethodGet, "/api/backups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]BackupRun](t, rec), 1)
}
