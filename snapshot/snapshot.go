// Package snapshot persists an advisory, values-free view of the key
// registry to disk. The snapshot exists for visibility (what did the cache
// believe it held, and under which configuration); registry recovery after
// a crash goes through the backend-persisted registry, never this file.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config echoes the cache configuration into the snapshot for inspection.
type Config struct {
	DumpFilePath            string `json:"dump_file_path"`
	MaxSize                 int    `json:"max_size"`
	AutoDumpIntervalSeconds int    `json:"auto_dump_interval_seconds"`
}

// Document is the on-disk snapshot format. It contains key names and
// metadata only, never values.
type Document struct {
	Timestamp        time.Time `json:"timestamp"`
	BackendID        string    `json:"backend_id"`
	Keys             []string  `json:"keys"`
	TotalKeys        int       `json:"total_keys"`
	AutoDumpInterval int       `json:"auto_dump_interval"` // seconds; 0 = disabled
	Config           Config    `json:"config"`
}

// Stages at which a snapshot write can fail.
const (
	StageBuild  = "build"
	StageWrite  = "write"
	StageVerify = "verify"
	StageCommit = "commit"
)

// Error reports a failed snapshot write. Whatever the stage, the canonical
// snapshot file is left exactly as it was before the attempt.
type Error struct {
	Stage string
	Path  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("snapshot %s failed for %q: %v", e.Stage, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Writer writes snapshot documents using a verify-before-commit atomic
// protocol: temp file, fsync, re-parse, rename. Readers of the canonical
// path can never observe a half-written document.
type Writer struct {
	path       string
	keepBackup bool
}

// NewWriter returns a writer for the canonical snapshot path. When
// keepBackup is set, each successful commit first renames the previous
// canonical file to "<path>.bak", retaining exactly one prior generation.
func NewWriter(path string, keepBackup bool) *Writer {
	return &Writer{path: path, keepBackup: keepBackup}
}

// Path returns the canonical snapshot path.
func (w *Writer) Path() string { return w.path }

// BackupPath returns where the prior generation is kept when enabled.
func (w *Writer) BackupPath() string { return w.path + ".bak" }

// Write commits doc to the canonical path. On any failure the temp file is
// discarded and the previous canonical snapshot stays untouched; the error
// is an *Error carrying the failed stage.
func (w *Writer) Write(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &Error{Stage: StageBuild, Path: w.path, Err: err}
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &Error{Stage: StageWrite, Path: w.path, Err: err}
	}

	// A unique temp name per attempt keeps overlapping dumps (a manual
	// trigger racing the scheduler) from trampling each other's files.
	tmp, err := os.CreateTemp(dir, filepath.Base(w.path)+".tmp-*")
	if err != nil {
		return &Error{Stage: StageWrite, Path: w.path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &Error{Stage: StageWrite, Path: w.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &Error{Stage: StageWrite, Path: w.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &Error{Stage: StageWrite, Path: w.path, Err: err}
	}

	// Re-open and re-parse what actually hit the disk before swapping it in.
	if err := verify(tmpName); err != nil {
		os.Remove(tmpName)
		return &Error{Stage: StageVerify, Path: w.path, Err: err}
	}

	if w.keepBackup {
		if _, err := os.Stat(w.path); err == nil {
			if err := os.Rename(w.path, w.BackupPath()); err != nil {
				os.Remove(tmpName)
				return &Error{Stage: StageCommit, Path: w.path, Err: err}
			}
		}
	}

	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return &Error{Stage: StageCommit, Path: w.path, Err: err}
	}
	return nil
}

func verify(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc Document
	return json.Unmarshal(raw, &doc)
}

// Load reads the canonical snapshot if present. Used for diagnostics at
// startup; an absent file reports found=false without error.
func (w *Writer) Load() (*Document, bool, error) {
	raw, err := os.ReadFile(w.path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, err
	}
	return &doc, true, nil
}
