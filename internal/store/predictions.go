// Package store persists prediction history in SQLite so the cache can be
// warmed across restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"checkerminer/internal/logging"
	"checkerminer/internal/types"

	_ "modernc.org/sqlite"
)

// Prediction sources.
const (
	SourceLLM      = "llm"
	SourceRetry    = "retry"
	SourceFallback = "fallback"
)

// Prediction is one recorded overall score.
type Prediction struct {
	ID        int64                 `json:"id"`
	ProductID string                `json:"product_id"`
	Score     float64               `json:"score"`
	Source    string                `json:"source"`
	Model     string                `json:"model,omitempty"`
	Breakdown *types.ScoreBreakdown `json:"breakdown,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// Warmer receives the latest score per product on startup.
type Warmer interface {
	Set(productID string, score float64)
}

// PredictionStore is the SQLite prediction history.
type PredictionStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open opens (creating if needed) the prediction database at path. The
// special path ":memory:" keeps everything in memory.
func Open(path string) (*PredictionStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		logging.StoreError("failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &PredictionStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.StoreError("failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store("prediction store ready at %s", path)
	return s, nil
}

func (s *PredictionStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id TEXT NOT NULL,
		score REAL NOT NULL,
		source TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		breakdown_json TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_product ON predictions(product_id, id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create predictions table: %w", err)
	}
	return nil
}

// Record appends a prediction. CreatedAt defaults to now.
func (s *PredictionStore) Record(ctx context.Context, p Prediction) error {
	if p.ProductID == "" {
		return errors.New("prediction without product id")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	var breakdown sql.NullString
	if p.Breakdown != nil {
		data, err := json.Marshal(p.Breakdown)
		if err != nil {
			return fmt.Errorf("failed to marshal breakdown: %w", err)
		}
		breakdown = sql.NullString{String: string(data), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO predictions (product_id, score, source, model, breakdown_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ProductID, p.Score, p.Source, p.Model, breakdown, p.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		logging.StoreError("failed to record prediction for %s: %v", p.ProductID, err)
		return fmt.Errorf("failed to record prediction: %w", err)
	}
	logging.StoreDebug("recorded prediction %s=%.2f (%s)", p.ProductID, p.Score, p.Source)
	return nil
}

const selectColumns = `id, product_id, score, source, model, breakdown_json, created_at`

// Latest returns the most recent prediction for productID, or nil.
func (s *PredictionStore) Latest(ctx context.Context, productID string) (*Prediction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM predictions WHERE product_id = ? ORDER BY id DESC LIMIT 1`, productID)
	p, err := scanPrediction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prediction: %w", err)
	}
	return p, nil
}

// List returns the newest predictions first. limit <= 0 returns all.
func (s *PredictionStore) List(ctx context.Context, limit int) ([]Prediction, error) {
	query := `SELECT ` + selectColumns + ` FROM predictions ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Warm loads the latest score of every product into w and returns how many
// products were loaded.
func (s *PredictionStore) Warm(ctx context.Context, w Warmer) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.product_id, p.score FROM predictions p
		JOIN (SELECT product_id, MAX(id) AS max_id FROM predictions GROUP BY product_id) latest
		ON p.id = latest.max_id`)
	if err != nil {
		return 0, fmt.Errorf("failed to warm cache: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return n, fmt.Errorf("failed to scan prediction: %w", err)
		}
		w.Set(id, score)
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	logging.Store("warmed cache with %d predictions", n)
	return n, nil
}

// Path returns the database path.
func (s *PredictionStore) Path() string {
	return s.dbPath
}

// Ping checks the database connection.
func (s *PredictionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PredictionStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(sc scanner) (*Prediction, error) {
	var (
		p         Prediction
		breakdown sql.NullString
		created   string
	)
	if err := sc.Scan(&p.ID, &p.ProductID, &p.Score, &p.Source, &p.Model, &breakdown, &created); err != nil {
		return nil, err
	}
	if breakdown.Valid && breakdown.String != "" {
		var b types.ScoreBreakdown
		if err := json.Unmarshal([]byte(breakdown.String), &b); err != nil {
			return nil, fmt.Errorf("failed to decode breakdown for %s: %w", p.ProductID, err)
		}
		p.Breakdown = &b
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		p.CreatedAt = t
	}
	return &p, nil
}
