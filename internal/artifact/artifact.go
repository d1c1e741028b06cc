// Package artifact manages the per-file artifact directory.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Artifact file names
const (
	DDLFile      = "mysql.sql"
	LineageFile  = "physical_lineage.json"
	ImpactFile   = "physical_impact.json"
	InsightsFile = "physical_graph_insights.json"
	ERDFile      = "erd_mysql.mmd"
)

// Dir is the artifact directory <base>/<fileId>/physical
type Dir struct {
	Base   string
	FileID string
}

// Info describes an existing artifact
type Info struct {
	Path     string
	Size     int64
	Modified time.Time
}

// Root returns the physical directory of the file id
func (d Dir) Root() string {
	return filepath.Join(d.Base, d.FileID, "physical")
}

// Path returns the location of a named artifact
func (d Dir) Path(name string) string {
	return filepath.Join(d.Root(), name)
}

// Exists reports whether the named artifact is present
func (d Dir) Exists(name string) (bool, error) {
	_, err := os.Stat(d.Path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Stat returns size and modification time of the named artifact
func (d Dir) Stat(name string) (Info, error) {
	path := d.Path(name)
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	return Info{Path: path, Size: fi.Size(), Modified: fi.ModTime()}, nil
}

// WriteFile writes data atomically: the content goes to a temporary file in
// the same directory which is then renamed over the target. On failure the
// target is left untouched.
func (d Dir) WriteFile(name string, data []byte) (Info, error) {
	if err := os.MkdirAll(d.Root(), 0755); err != nil {
		return Info{}, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(d.Root(), "."+name+".*.tmp")
	if err != nil {
		return Info{}, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Info{}, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return Info{}, fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return Info{}, fmt.Errorf("failed to set permissions on %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, d.Path(name)); err != nil {
		return Info{}, fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	tmpPath = ""

	return d.Stat(name)
}

// WriteJSON encodes v with two-space indentation and writes it atomically
func (d Dir) WriteJSON(name string, v any) (Info, error) {
	data, err := EncodeJSON(v)
	if err != nil {
		return Info{}, fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return d.WriteFile(name, data)
}

// EncodeJSON renders v as pretty-printed JSON without HTML escaping
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
