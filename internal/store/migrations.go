package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Training runs - one row per invocation of the training procedure
		`CREATE TABLE IF NOT EXISTS training_runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed')),
			labels TEXT NOT NULL DEFAULT '[]',
			layout TEXT NOT NULL,
			folders TEXT NOT NULL DEFAULT '[]',
			samples INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			train_samples INTEGER NOT NULL DEFAULT 0,
			val_samples INTEGER NOT NULL DEFAULT 0,
			best_epoch INTEGER NOT NULL DEFAULT 0,
			val_loss REAL NOT NULL DEFAULT 0,
			val_accuracy REAL NOT NULL DEFAULT 0,
			checkpoint TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,

		// Per-epoch metrics of a training run
		`CREATE TABLE IF NOT EXISTS training_epochs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES training_runs(id) ON DELETE CASCADE,
			epoch INTEGER NOT NULL,
			loss REAL NOT NULL,
			accuracy REAL NOT NULL,
			val_loss REAL NOT NULL,
			val_accuracy REAL NOT NULL
		)`,

		// Predictions served by /predict and /upload
		`CREATE TABLE IF NOT EXISTS predictions (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			confidence REAL NOT NULL,
			source TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_training_epochs_run_id ON training_epochs(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
