// Package file persists ledger artifacts as JSON documents in a data
// directory, written atomically so readers never observe a partial
// file.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"merge-ledger/internal/storage"
)

// Document file names within the data directory.
const (
	ledgerFile       = "db.json"
	feedFile         = "latest_merges.json"
	historyFile      = "supply_history.json"
	alphaFile        = "alpha_changes.json"
	failedAliveFile  = "failed_ids.json"
	failedBurnedFile = "failed_burned_ids.json"
	statsFile        = "stats.json"
	repartitionFile  = "mass_repartition.json"
	matterFile       = "matter.json"
	highIDFile       = "token_28xxx.json"
	mergedIntoFile   = "merged_into.json"
	mergeHistoryFile = "merge_history.json"
)

// Dir is a data directory shared by the file-backed stores.
type Dir struct {
	path string
}

// NewDir opens a data directory, creating it if needed.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory location.
func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) readJSON(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(d.path, name))
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// writeJSON writes to a temp file in the same directory and renames it
// over the target, so a crash mid-write never clobbers the old file.
func (d *Dir) writeJSON(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(d.path, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := os.Rename(tmpName, filepath.Join(d.path, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}
