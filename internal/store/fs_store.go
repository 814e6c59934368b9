package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FSStore implements the Store interface using filesystem-based
// persistence. Results are stored under <baseDir>/runs/<runID>/.
//
// Thread-safety: atomic file operations (rename) are used throughout;
// no locks are required and concurrent callers are safe.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store. The base directory
// is created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

func (fs *FSStore) runDir(runID string) string {
	return filepath.Join(fs.baseDir, "runs", runID)
}

func (fs *FSStore) resultPath(runID string) string {
	return filepath.Join(fs.runDir(runID), "result.json")
}

// SaveResult atomically saves a fit result using the temp file +
// rename pattern.
func (fs *FSStore) SaveResult(runID string, result *FitResult) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}
	if err := result.Validate(); err != nil {
		return err
	}

	runDir := fs.runDir(runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	tempPath := fs.resultPath(runID) + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp result file: %w", err)
	}

	finalPath := fs.resultPath(runID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename result file: %w", err)
	}

	slog.Debug("Fit result saved", "runID", runID, "path", finalPath)
	return nil
}

// LoadResult retrieves the result for the given run.
func (fs *FSStore) LoadResult(runID string) (*FitResult, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	path := fs.resultPath(runID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat result file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}

	var result FitResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to deserialize result: %w", err)
	}

	slog.Debug("Fit result loaded", "runID", runID, "path", path)
	return &result, nil
}

// ListResults returns metadata for all stored results.
func (fs *FSStore) ListResults() ([]ResultInfo, error) {
	runsDir := filepath.Join(fs.baseDir, "runs")

	if _, err := os.Stat(runsDir); os.IsNotExist(err) {
		return []ResultInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat runs directory: %w", err)
	}

	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var infos []ResultInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		runID := entry.Name()
		if _, err := os.Stat(fs.resultPath(runID)); os.IsNotExist(err) {
			continue
		}
		result, err := fs.LoadResult(runID)
		if err != nil {
			slog.Warn("Failed to load result for listing", "runID", runID, "error", err)
			continue
		}
		infos = append(infos, result.ToInfo())
	}

	slog.Debug("Listed fit results", "count", len(infos))
	return infos, nil
}

// DeleteResult removes the result and all associated artifacts.
func (fs *FSStore) DeleteResult(runID string) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}

	runDir := fs.runDir(runID)
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		return &NotFoundError{RunID: runID}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(runDir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}

	slog.Debug("Fit result deleted", "runID", runID, "path", runDir)
	return nil
}
