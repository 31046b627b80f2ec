// Package storage persists simulation runs.
package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/san-kum/cropsim/internal/dynamo"
)

var ErrRunNotFound = errors.New("storage: run not found")

type RunMetadata struct {
	ID         string             `json:"id"`
	Scenario   string             `json:"scenario"`
	Timestamp  time.Time          `json:"timestamp"`
	Integrator string             `json:"integrator"`
	Timestep   float64            `json:"timestep"`
	Steps      int                `json:"steps"`
	Modules    []string           `json:"modules"`
	Metrics    map[string]float64 `json:"metrics"`
}

// Backend stores run metadata together with the result columns.
type Backend interface {
	Save(meta RunMetadata, result *dynamo.Result) (string, error)
	List() ([]RunMetadata, error)
	Load(runID string) (*RunMetadata, error)
	LoadResult(runID string) (*dynamo.Result, error)
	Close() error
}

// Open returns the backend named kind ("file" or "sqlite") rooted at dir.
func Open(kind, dir string) (Backend, error) {
	switch kind {
	case "", "file":
		fs := NewFileStore(dir)
		if err := fs.Init(); err != nil {
			return nil, err
		}
		return fs, nil
	case "sqlite":
		return OpenSQLite(filepath.Join(dir, "runs.db"))
	}
	return nil, fmt.Errorf("unknown storage backend: %s", kind)
}

func newRunID(scenario string, now time.Time) string {
	return fmt.Sprintf("%s_%d", scenario, now.UnixNano())
}

// prepare fills the generated fields of meta.
func prepare(meta RunMetadata, result *dynamo.Result) RunMetadata {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	if meta.ID == "" {
		meta.ID = newRunID(meta.Scenario, meta.Timestamp)
	}
	meta.Steps = result.StepsTaken
	if meta.Metrics == nil {
		meta.Metrics = result.Metrics
	}
	return meta
}
