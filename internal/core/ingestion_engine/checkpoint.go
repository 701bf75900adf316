package ingestion_engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/markdave123-py/crawlvec/internal/models"
)

var (
	ErrCheckpointWrite   = errors.New("checkpoint write failed")
	ErrInvalidTransition = errors.New("invalid checkpoint state transition")
	ErrBatchOutOfOrder   = errors.New("batch advanced out of order")
)

// Tracker owns the progress checkpoint file. It is safe for concurrent
// readers (the status server) while the pipeline writes.
type Tracker struct {
	mu   sync.Mutex
	path string
	cp   models.ProgressCheckpoint
	now  func() time.Time
	log  *slog.Logger
}

func NewTracker(path string) *Tracker {
	return &Tracker{
		path: path,
		cp:   models.ProgressCheckpoint{State: models.StateNotStarted},
		now:  time.Now,
		log:  slog.Default().With("component", "checkpoint"),
	}
}

// Path returns the checkpoint file location.
func (t *Tracker) Path() string { return t.path }

// Load reads the checkpoint file. found is false when no file exists.
func (t *Tracker) Load() (cp models.ProgressCheckpoint, found bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return t.cp, false, nil
	}
	if err != nil {
		return t.cp, false, fmt.Errorf("read checkpoint: %w", err)
	}
	var loaded models.ProgressCheckpoint
	if err := json.Unmarshal(data, &loaded); err != nil {
		return t.cp, false, fmt.Errorf("decode checkpoint %s: %w", t.path, err)
	}
	if loaded.State == "" {
		loaded.State = models.StatePaused
	}
	t.cp = loaded
	return t.cp, true, nil
}

// Resumable reports whether the loaded checkpoint can continue over a
// manifest with the given hash and batch size.
func (t *Tracker) Resumable(manifestHash string, filesPerBatch int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.cp.State {
	case models.StateRunning, models.StatePaused, models.StateFailed:
	default:
		return false
	}
	return t.cp.ManifestHash != "" &&
		t.cp.ManifestHash == manifestHash &&
		t.cp.FilesPerBatch == filesPerBatch &&
		t.cp.CurrentBatch < t.cp.TotalBatches
}

// RunStart describes a fresh run.
type RunStart struct {
	RunID         string
	TotalFiles    int
	TotalBatches  int
	FilesPerBatch int
	ManifestHash  string
	Rejected      map[string]int
	SkippedFiles  int
}

// Begin starts a fresh run, discarding any previous progress.
func (t *Tracker) Begin(s RunStart) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cp = models.ProgressCheckpoint{
		TotalFiles:    s.TotalFiles,
		TotalBatches:  s.TotalBatches,
		RunID:         s.RunID,
		State:         models.StateRunning,
		FilesPerBatch: s.FilesPerBatch,
		ManifestHash:  s.ManifestHash,
		Rejected:      s.Rejected,
		SkippedFiles:  s.SkippedFiles,
	}
	return t.saveLocked()
}

// Resume moves a loaded checkpoint back to running.
func (t *Tracker) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.cp.State {
	case models.StatePaused, models.StateFailed, models.StateRunning:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.cp.State, models.StateRunning)
	}
	t.cp.State = models.StateRunning
	t.cp.LastError = ""
	return t.saveLocked()
}

// RecordFailure notes a batch that exhausted its retries. It is persisted by
// the following Advance.
func (t *Tracker) RecordFailure(fb models.FailedBatch) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fb.At.IsZero() {
		fb.At = t.now().UTC()
	}
	t.cp.FailedBatches = append(t.cp.FailedBatches, fb)
}

// Advance marks batch done and persists. Batches must advance in order.
func (t *Tracker) Advance(batch, files, docs, skipped int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cp.State != models.StateRunning {
		return fmt.Errorf("%w: advance while %s", ErrInvalidTransition, t.cp.State)
	}
	if batch != t.cp.CurrentBatch {
		return fmt.Errorf("%w: got %d, expected %d", ErrBatchOutOfOrder, batch, t.cp.CurrentBatch)
	}
	t.cp.ProcessedFiles += files
	t.cp.GeneratedDocuments += docs
	t.cp.SkippedFiles += skipped
	t.cp.CurrentBatch = batch + 1
	return t.saveLocked()
}

// Pause records an orderly stop.
func (t *Tracker) Pause() error {
	return t.transition(models.StatePaused, "")
}

// Complete marks the run finished.
func (t *Tracker) Complete() error {
	return t.transition(models.StateCompleted, "")
}

// Fail marks the run failed with cause.
func (t *Tracker) Fail(cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return t.transition(models.StateFailed, msg)
}

func (t *Tracker) transition(to models.RunState, lastErr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cp.State != models.StateRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.cp.State, to)
	}
	t.cp.State = to
	t.cp.LastError = lastErr
	return t.saveLocked()
}

// Snapshot returns a copy of the current checkpoint.
func (t *Tracker) Snapshot() models.ProgressCheckpoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	cp := t.cp
	cp.FailedBatches = append([]models.FailedBatch(nil), t.cp.FailedBatches...)
	if t.cp.Rejected != nil {
		cp.Rejected = make(map[string]int, len(t.cp.Rejected))
		for k, v := range t.cp.Rejected {
			cp.Rejected[k] = v
		}
	}
	return cp
}

// Reset removes the checkpoint and its manifest.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cp = models.ProgressCheckpoint{State: models.StateNotStarted}
	for _, p := range []string{t.path, ManifestPath(t.path)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

func (t *Tracker) saveLocked() error {
	t.cp.Timestamp = t.now().UTC()
	data, err := json.MarshalIndent(t.cp, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointWrite, err)
	}
	if err := writeFileAtomic(t.path, data); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointWrite, err)
	}
	t.log.Debug("checkpoint saved", "batch", t.cp.CurrentBatch, "state", t.cp.State)
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
