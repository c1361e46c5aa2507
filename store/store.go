// Package store provides SQLite-backed persistence for calibration runs
// and cross-validation folds, so parameter estimates can be compared across
// datasets and revisited later.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/epifit-xyz/go-epifit/crossval"
	"github.com/epifit-xyz/go-epifit/fit"
)

// Store handles database operations for run logging.
type Store struct {
	db *sql.DB
}

// Run is a persisted calibration run record.
type Run struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"` // "fit" or "crossval"
	Variant      string    `json:"variant"`
	CreatedAt    time.Time `json:"created_at"`
	Observations int       `json:"observations"`
	FinalLoss    float64   `json:"final_loss"`
	Iterations   int       `json:"iterations"`
	Params       []float64 `json:"params"`
}

// FoldRecord is one persisted cross-validation fold.
type FoldRecord struct {
	RunID    string    `json:"run_id"`
	Index    int       `json:"index"`
	TrainEnd int       `json:"train_end"`
	Params   []float64 `json:"params"`
	SqErr    []float64 `json:"sq_err"`
	Failed   bool      `json:"failed"`
	Error    string    `json:"error,omitempty"`
}

// Open creates a store backed by the database at path. Use ":memory:" for
// an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer; the CLI is the only client.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate creates the schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		variant TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		observations INTEGER NOT NULL,
		final_loss REAL NOT NULL,
		iterations INTEGER NOT NULL,
		params TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS folds (
		run_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		train_end INTEGER NOT NULL,
		params TEXT,
		sq_err TEXT,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		PRIMARY KEY (run_id, idx),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_variant ON runs(variant);
	CREATE INDEX IF NOT EXISTS idx_folds_run ON folds(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveFit persists a calibration run and returns its id.
func (s *Store) SaveFit(variant string, observations int, res *fit.Result) (string, error) {
	id := uuid.New().String()
	params, err := json.Marshal(res.Params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO runs (id, kind, variant, observations, final_loss, iterations, params)
		 VALUES (?, 'fit', ?, ?, ?, ?, ?)`,
		id, variant, observations, res.FinalLoss, res.Iterations, string(params),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// SaveCrossval persists a cross-validation run with all its folds and
// returns the run id. Failed folds are stored with their error text so the
// run record reflects the full picture.
func (s *Store) SaveCrossval(variant string, observations int, res *crossval.Result) (string, error) {
	id := uuid.New().String()

	// For cross-validation runs the loss column carries the lag-1 MSE.
	finalLoss := 0.0
	if mse := res.MSEAvg(); len(mse) > 0 && !math.IsNaN(mse[0]) {
		finalLoss = mse[0]
	}
	params := res.FinalParams
	if params == nil {
		params = []float64{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, kind, variant, observations, final_loss, iterations, params)
		 VALUES (?, 'crossval', ?, ?, ?, ?, ?)`,
		id, variant, observations, finalLoss, len(res.Folds), string(paramsJSON),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO folds (run_id, idx, train_end, params, sq_err, failed, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare folds: %w", err)
	}
	defer stmt.Close()

	for _, f := range res.Folds {
		var foldParams, sqErr []byte
		if f.Params != nil {
			if foldParams, err = json.Marshal(f.Params); err != nil {
				return "", fmt.Errorf("marshal fold params: %w", err)
			}
		}
		if f.SqErr != nil {
			if sqErr, err = json.Marshal(f.SqErr); err != nil {
				return "", fmt.Errorf("marshal fold errors: %w", err)
			}
		}
		errText := ""
		if f.Err != nil {
			errText = f.Err.Error()
		}
		if _, err := stmt.Exec(id, f.Index, f.TrainEnd, string(foldParams), string(sqErr), f.Err != nil, errText); err != nil {
			return "", fmt.Errorf("insert fold %d: %w", f.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, kind, variant, created_at, observations, final_loss, iterations, params
		 FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, kind, variant, created_at, observations, final_loss, iterations, params
		 FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
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
	return runs, rows.Err()
}

// GetFolds retrieves the folds of a cross-validation run, in fold order.
func (s *Store) GetFolds(runID string) ([]*FoldRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, idx, train_end, params, sq_err, failed, error
		 FROM folds WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query folds: %w", err)
	}
	defer rows.Close()

	var folds []*FoldRecord
	for rows.Next() {
		var f FoldRecord
		var params, sqErr, errText sql.NullString
		if err := rows.Scan(&f.RunID, &f.Index, &f.TrainEnd, &params, &sqErr, &f.Failed, &errText); err != nil {
			return nil, fmt.Errorf("scan fold: %w", err)
		}
		if params.Valid && params.String != "" {
			if err := json.Unmarshal([]byte(params.String), &f.Params); err != nil {
				return nil, fmt.Errorf("unmarshal fold params: %w", err)
			}
		}
		if sqErr.Valid && sqErr.String != "" {
			if err := json.Unmarshal([]byte(sqErr.String), &f.SqErr); err != nil {
				return nil, fmt.Errorf("unmarshal fold errors: %w", err)
			}
		}
		f.Error = errText.String
		folds = append(folds, &f)
	}
	return folds, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var params string
	if err := row.Scan(&run.ID, &run.Kind, &run.Variant, &run.CreatedAt,
		&run.Observations, &run.FinalLoss, &run.Iterations, &params); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return &run, nil
}
