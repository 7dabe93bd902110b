package teamdefaults

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/JacquesBronk/FreeScrumPoker/go/internal/models"
)

// FileStore keeps team defaults in a single JSON document on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a store for the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the document. A missing file yields empty defaults.
func (s *FileStore) Load(_ context.Context) (map[string]models.TeamDefaults, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]models.TeamDefaults), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %v", s.path, ErrPersistence, err)
	}

	teams := make(map[string]models.TeamDefaults)
	if err := json.Unmarshal(data, &teams); err != nil {
		return nil, fmt.Errorf("parse %s: %w: %v", s.path, ErrPersistence, err)
	}
	// A "null" document decodes to a nil map.
	if teams == nil {
		teams = make(map[string]models.TeamDefaults)
	}
	return teams, nil
}

// Save writes the document atomically through a temporary file.
func (s *FileStore) Save(_ context.Context, teams map[string]models.TeamDefaults) error {
	data, err := json.MarshalIndent(teams, "", "  ")
	if err != nil {
		return fmt.Errorf("encode team defaults: %w: %v", ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w: %v", ErrPersistence, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w: %v", tmp.Name(), ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w: %v", tmp.Name(), ErrPersistence, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w: %v", s.path, ErrPersistence, err)
	}
	return nil
}
