package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gofrs/flock"
	yaml "gopkg.in/yaml.v3"

	"github.com/planvane/planvane/models"
)

const (
	formatJSON     = "json"
	formatYAML     = "yaml"
	formatTOML     = "toml"
	checksumSuffix = ".checksum"
)

// FileProjectStore persists the state document to a single file in
// JSON, YAML or TOML, guarded by a file lock and a SHA-256 checksum
// sidecar. Writes go through a temp file and rename so readers only
// ever see committed snapshots.
type FileProjectStore struct {
	filePath string
	format   string
	flk      *flock.Flock
}

// NewFileProjectStore opens a file-backed store at path. format is one
// of "json", "yaml" or "toml"; empty means json. The parent directory
// is created if missing and an exclusive lock is taken for the lifetime
// of the store — the state file has exactly one writer.
func NewFileProjectStore(path, format string) (*FileProjectStore, error) {
	if path == "" {
		return nil, errors.New("state file path is required")
	}
	switch strings.ToLower(format) {
	case "":
		format = formatJSON
	case formatJSON, formatYAML, formatTOML:
		format = strings.ToLower(format)
	default:
		return nil, fmt.Errorf("unsupported state file format: %s. Supported formats are json, yaml, toml", format)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	s := &FileProjectStore{
		filePath: path,
		format:   format,
		flk:      flock.New(path + ".lock"),
	}
	locked, err := s.flk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("state file %s is locked by another writer", path)
	}
	return s, nil
}

// Path returns the state file location. Readers such as the dashboard
// use it to watch for committed snapshots.
func (s *FileProjectStore) Path() string {
	return s.filePath
}

// Load reads and decodes the state document. A missing file yields
// (nil, nil). A checksum sidecar, when present, must match.
func (s *FileProjectStore) Load() (*models.ProjectState, error) {
	return ReadStateFile(s.filePath, s.format)
}

// ReadStateFile decodes the state document at path without taking the
// writer lock. Readers such as the dashboard use it to observe
// committed snapshots while the orchestrator owns the store.
func ReadStateFile(path, format string) (*models.ProjectState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	checksumPath := path + checksumSuffix
	if expected, err := os.ReadFile(checksumPath); err == nil {
		actual := calculateChecksum(data)
		if strings.TrimSpace(string(expected)) != actual {
			return nil, fmt.Errorf("state file %s failed checksum verification", path)
		}
	}

	var state models.ProjectState
	switch strings.ToLower(format) {
	case formatYAML:
		err = yaml.Unmarshal(data, &state)
	case formatTOML:
		err = toml.Unmarshal(data, &state)
	default:
		err = json.Unmarshal(data, &state)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode state file %s: %w", path, err)
	}
	return &state, nil
}

// Save encodes the state and writes it atomically: temp file in the
// same directory, fsync, rename over the target, then the checksum
// sidecar.
func (s *FileProjectStore) Save(state *models.ProjectState) error {
	if state == nil {
		return errors.New("cannot save nil state")
	}

	var data []byte
	var err error
	switch s.format {
	case formatYAML:
		data, err = yaml.Marshal(state)
	case formatTOML:
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(state)
		data = []byte(sb.String())
	default:
		data, err = json.MarshalIndent(state, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.filePath), filepath.Base(s.filePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.filePath); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	if err := os.WriteFile(s.filePath+checksumSuffix, []byte(calculateChecksum(data)), 0o644); err != nil {
		return fmt.Errorf("failed to write checksum file: %w", err)
	}
	return nil
}

// Close releases the writer lock.
func (s *FileProjectStore) Close() error {
	if s.flk != nil {
		return s.flk.Unlock()
	}
	return nil
}

// calculateChecksum computes the SHA256 checksum of the given data.
func calculateChecksum(data []byte) string {
	hasher := sha256.New()
	hasher.Write(data) // Write never returns an error
	return hex.EncodeToString(hasher.Sum(nil))
}
