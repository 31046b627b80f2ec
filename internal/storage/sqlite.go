package storage

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/san-kum/cropsim/internal/dynamo"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// SQLiteStore keeps runs in one database: a runs table and a long-format
// samples table with one row per (run, parameter, step).
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) Save(meta RunMetadata, result *dynamo.Result) (string, error) {
	meta = prepare(meta, result)

	modules, err := json.Marshal(meta.Modules)
	if err != nil {
		return "", fmt.Errorf("marshal modules: %w", err)
	}
	metrics, err := json.Marshal(meta.Metrics)
	if err != nil {
		return "", fmt.Errorf("marshal metrics: %w", err)
	}

	tx, err := s.sqlDB.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO runs (id, scenario, created_at, integrator, timestep, steps, modules, metrics)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Scenario, toMillis(meta.Timestamp), meta.Integrator, meta.Timestep, meta.Steps,
		string(modules), string(metrics),
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO samples (run_id, step, time, name, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for _, name := range result.Names {
		for step, v := range result.Columns[name] {
			if _, err := stmt.Exec(meta.ID, step, result.Times[step], name, v); err != nil {
				return "", fmt.Errorf("insert sample %s[%d]: %w", name, step, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return meta.ID, nil
}

const runColumns = `id, scenario, created_at, integrator, timestep, steps, modules, metrics`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunMetadata, error) {
	var (
		meta       RunMetadata
		createdAt  int64
		modulesRaw string
		metricsRaw string
	)
	if err := row.Scan(&meta.ID, &meta.Scenario, &createdAt, &meta.Integrator, &meta.Timestep,
		&meta.Steps, &modulesRaw, &metricsRaw); err != nil {
		return RunMetadata{}, err
	}
	meta.Timestamp = fromMillis(createdAt)
	if err := json.Unmarshal([]byte(modulesRaw), &meta.Modules); err != nil {
		return RunMetadata{}, fmt.Errorf("unmarshal modules: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsRaw), &meta.Metrics); err != nil {
		return RunMetadata{}, fmt.Errorf("unmarshal metrics: %w", err)
	}
	return meta, nil
}

func (s *SQLiteStore) List() ([]RunMetadata, error) {
	rows, err := s.sqlDB.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]RunMetadata, 0)
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, meta)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Load(runID string) (*RunMetadata, error) {
	meta, err := scanRun(s.sqlDB.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	return &meta, nil
}

func (s *SQLiteStore) LoadResult(runID string) (*dynamo.Result, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.Query(`SELECT step, time, name, value FROM samples WHERE run_id = ? ORDER BY name, step`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &dynamo.Result{
		Columns:    make(map[string][]float64),
		Metrics:    meta.Metrics,
		StepsTaken: meta.Steps,
	}
	for rows.Next() {
		var (
			step int
			t, v float64
			name string
		)
		if err := rows.Scan(&step, &t, &name, &v); err != nil {
			return nil, err
		}
		col, ok := res.Columns[name]
		if !ok {
			res.Names = append(res.Names, name)
		}
		res.Columns[name] = append(col, v)
		if step == len(res.Times) {
			res.Times = append(res.Times, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
