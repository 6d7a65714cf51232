package store

import (
	"database/sql"
	"time"
)

// Prediction sources.
const (
	SourcePredict = "predict"
)

// Prediction is one served classification.
type Prediction struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// PredictionRepository provides access to the prediction log.
type PredictionRepository struct {
	db *sql.DB
}

// Predictions returns the prediction repository for this store.
func (s *Store) Predictions() *PredictionRepository {
	return &PredictionRepository{db: s.db}
}

// Create inserts a prediction. CreatedAt is set when zero.
func (r *PredictionRepository) Create(p *Prediction) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := r.db.Exec(
		`INSERT INTO predictions (id, label, confidence, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Label, p.Confidence, p.Source, p.CreatedAt,
	)
	return err
}

// List returns up to limit predictions, newest first. A non-positive limit
// returns all of them.
func (r *PredictionRepository) List(limit int) ([]*Prediction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, label, confidence, source, created_at
		 FROM predictions ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var preds []*Prediction
	for rows.Next() {
		p := &Prediction{}
		if err := rows.Scan(&p.ID, &p.Label, &p.Confidence, &p.Source, &p.CreatedAt); err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return preds, nil
}
