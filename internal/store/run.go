package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// RunStatus is the lifecycle state of a training run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one training run and its outcome.
type Run struct {
	ID           string     `json:"id"`
	Status       RunStatus  `json:"status"`
	Labels       []string   `json:"labels"`
	Layout       string     `json:"layout"`
	Folders      []string   `json:"folders"`
	Samples      int        `json:"samples"`
	Skipped      int        `json:"skipped"`
	TrainSamples int        `json:"train_samples"`
	ValSamples   int        `json:"val_samples"`
	BestEpoch    int        `json:"best_epoch"`
	ValLoss      float64    `json:"val_loss"`
	ValAccuracy  float64    `json:"val_accuracy"`
	Checkpoint   string     `json:"checkpoint"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// RunRepository provides access to training runs.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the training run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create inserts a new run. StartedAt is set when zero.
func (r *RunRepository) Create(run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}

	labels, err := json.Marshal(nonNil(run.Labels))
	if err != nil {
		return err
	}
	folders, err := json.Marshal(nonNil(run.Folders))
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO training_runs (id, status, labels, layout, folders, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), string(labels), run.Layout, string(folders), run.StartedAt,
	)
	return err
}

// Finish records the outcome of a run and stamps FinishedAt.
func (r *RunRepository) Finish(run *Run) error {
	now := time.Now()
	run.FinishedAt = &now

	result, err := r.db.Exec(
		`UPDATE training_runs SET status = ?, samples = ?, skipped = ?, train_samples = ?, val_samples = ?,
		 best_epoch = ?, val_loss = ?, val_accuracy = ?, checkpoint = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status), run.Samples, run.Skipped, run.TrainSamples, run.ValSamples,
		run.BestEpoch, run.ValLoss, run.ValAccuracy, run.Checkpoint, run.Error, now, run.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const runColumns = `id, status, labels, layout, folders, samples, skipped, train_samples, val_samples,
	best_epoch, val_loss, val_accuracy, checkpoint, error, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var status, labels, folders string
	var finished sql.NullTime

	err := row.Scan(&run.ID, &status, &labels, &run.Layout, &folders, &run.Samples, &run.Skipped,
		&run.TrainSamples, &run.ValSamples, &run.BestEpoch, &run.ValLoss, &run.ValAccuracy,
		&run.Checkpoint, &run.Error, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	if err := json.Unmarshal([]byte(labels), &run.Labels); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(folders), &run.Folders); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM training_runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List retrieves all runs, newest first.
func (r *RunRepository) List() ([]*Run, error) {
	rows, err := r.db.Query(`SELECT ` + runColumns + ` FROM training_runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// Epoch is the metrics of one completed training epoch.
type Epoch struct {
	RunID       string  `json:"run_id"`
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
}

// EpochRepository provides access to per-epoch training metrics.
type EpochRepository struct {
	db *sql.DB
}

// Epochs returns the epoch repository for this store.
func (s *Store) Epochs() *EpochRepository {
	return &EpochRepository{db: s.db}
}

// Add records one epoch of a run.
func (r *EpochRepository) Add(e *Epoch) error {
	_, err := r.db.Exec(
		`INSERT INTO training_epochs (run_id, epoch, loss, accuracy, val_loss, val_accuracy)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Epoch, e.Loss, e.Accuracy, e.ValLoss, e.ValAccuracy,
	)
	return err
}

// ListByRun returns a run's epochs in order.
func (r *EpochRepository) ListByRun(runID string) ([]Epoch, error) {
	rows, err := r.db.Query(
		`SELECT run_id, epoch, loss, accuracy, val_loss, val_accuracy
		 FROM training_epochs WHERE run_id = ? ORDER BY epoch`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var epochs []Epoch
	for rows.Next() {
		var e Epoch
		if err := rows.Scan(&e.RunID, &e.Epoch, &e.Loss, &e.Accuracy, &e.ValLoss, &e.ValAccuracy); err != nil {
			return nil, err
		}
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
