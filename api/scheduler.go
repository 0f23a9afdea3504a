/*
scheduler.go - Automated workbook backup scheduler

PURPOSE:
  Periodically writes a snapshot of the whole ledger to a dated .xlsx file
  and prunes old ones, so any store driver gets a spreadsheet copy that can
  be re-imported through POST /api/import.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Writes through workbook.Store (temp file + rename)
  - Keeps the newest Keep backups and removes the rest
  - Records backup runs for audit and UI display

CONFIGURATION:
  - BACKUP_DIR:      Target directory (empty disables the scheduler)
  - BACKUP_INTERVAL: How often to back up (default: 1 hour)
  - BACKUP_KEEP:     Backups kept on disk (default: 24)

USAGE:
  scheduler := NewBackupScheduler(engine, dir, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Export endpoint (on-demand download)
  - workbook/store.go: atomic workbook writes
*/
package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/green/recycling-ledger/ledger"
	"github.com/green/recycling-ledger/workbook"
	"github.com/sirupsen/logrus"
)

// maxBackupRuns caps the run history kept in memory.
const maxBackupRuns = 50

// BackupRun is the record of one backup attempt.
type BackupRun struct {
	ID          string     `json:"id"`
	Path        string     `json:"path,omitempty"`
	Status      string     `json:"status"` // running, completed, failed
	Batches     int        `json:"batches"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// BackupScheduler handles periodic workbook backups.
type BackupScheduler struct {
	Engine        *ledger.Engine
	Dir           string
	Keep          int
	CheckInterval time.Duration
	Log           logrus.FieldLogger

	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex // guards ticker and stop
	runsMu sync.Mutex
	runs   []BackupRun
	seq    int
}

// NewBackupScheduler creates a new scheduler writing into dir.
func NewBackupScheduler(engine *ledger.Engine, dir string, log logrus.FieldLogger) *BackupScheduler {
	return &BackupScheduler{
		Engine:        engine,
		Dir:           dir,
		Keep:          24,
		CheckInterval: 1 * time.Hour,
		Log:           log,
		now:           time.Now,
	}
}

// Start begins the scheduler. Calling Start on a running scheduler is a no-op.
func (bs *BackupScheduler) Start() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker != nil {
		return
	}
	bs.ticker = time.NewTicker(bs.CheckInterval)
	bs.stop = make(chan struct{})
	bs.wg.Add(1)

	go bs.run(bs.ticker, bs.stop)

	bs.Log.WithFields(logrus.Fields{"dir": bs.Dir, "interval": bs.CheckInterval}).Info("backup scheduler started")
}

// Stop stops the scheduler and waits for a running backup to finish.
func (bs *BackupScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker == nil {
		return
	}
	bs.ticker.Stop()
	close(bs.stop)
	bs.wg.Wait()
	bs.ticker = nil
	bs.Log.Info("backup scheduler stopped")
}

func (bs *BackupScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer bs.wg.Done()

	// Run immediately on start
	bs.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			bs.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow writes one backup and prunes old ones. Failures are recorded in
// the returned run as well as returned.
func (bs *BackupScheduler) RunNow(ctx context.Context) (BackupRun, error) {
	started := bs.now()

	bs.runsMu.Lock()
	bs.seq++
	run := BackupRun{
		ID:        fmt.Sprintf("backup-%s-%03d", started.UTC().Format("20060102-150405"), bs.seq),
		Status:    "running",
		StartedAt: started,
	}
	bs.runsMu.Unlock()

	err := bs.write(ctx, &run)
	completed := bs.now()
	run.CompletedAt = &completed
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		bs.Log.WithError(err).WithField("run", run.ID).Error("backup failed")
	} else {
		run.Status = "completed"
		bs.Log.WithFields(logrus.Fields{"run": run.ID, "path": run.Path, "batches": run.Batches}).Info("backup written")
	}
	bs.record(run)
	return run, err
}

func (bs *BackupScheduler) write(ctx context.Context, run *BackupRun) error {
	if err := os.MkdirAll(bs.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup dir: %w", err)
	}

	snap := bs.Engine.Snapshot()
	run.Batches = len(snap.Batches)
	path := filepath.Join(bs.Dir, run.ID+".xlsx")
	if err := workbook.NewStore(path).Save(ctx, snap); err != nil {
		return err
	}
	run.Path = path

	return bs.prune()
}

// prune removes all but the newest Keep backups. Names sort by time.
func (bs *BackupScheduler) prune() error {
	if bs.Keep <= 0 {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(bs.Dir, "backup-*.xlsx"))
	if err != nil {
		return err
	}
	if len(files) <= bs.Keep {
		return nil
	}
	sort.Strings(files)
	for _, f := range files[:len(files)-bs.Keep] {
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("failed to prune backup: %w", err)
		}
	}
	return nil
}

func (bs *BackupScheduler) record(run BackupRun) {
	bs.runsMu.Lock()
	defer bs.runsMu.Unlock()

	bs.runs = append(bs.runs, run)
	if len(bs.runs) > maxBackupRuns {
		bs.runs = bs.runs[len(bs.runs)-maxBackupRuns:]
	}
}

// Runs returns the recorded runs, newest first.
func (bs *BackupScheduler) Runs() []BackupRun {
	bs.runsMu.Lock()
	defer bs.runsMu.Unlock()

	out := make([]BackupRun, len(bs.runs))
	for i, r := range bs.runs {
		out[len(out)-1-i] = r
	}
	return out
}
