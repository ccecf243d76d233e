// Package store persists flow definitions as JSON documents, one file per
// flow, under a single directory.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/convoflow/convoflow/runtime"
)

// ErrNotFound reports a flow name with no stored definition.
var ErrNotFound = errors.New("flow not found")

// FileStore keeps one <name>.json per flow. Writes go through a temp file
// and rename so a crash never leaves a half-written definition behind.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

func (s *FileStore) Load(name string) (*runtime.FlowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("store: %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("store: reading %s: %w", name, err)
	}

	var def runtime.FlowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("store: decoding %s: %w", name, err)
	}
	return &def, nil
}

func (s *FileStore) Save(def *runtime.FlowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("store: definition has no name")
	}
	if strings.ContainsAny(def.Name, `/\`) {
		return fmt.Errorf("store: invalid flow name %q", def.Name)
	}

	raw, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding %s: %w", def.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, def.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("store: writing %s: %w", def.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: closing %s: %w", def.Name, err)
	}

	if err := os.Rename(tmp.Name(), s.path(def.Name)); err != nil {
		return fmt.Errorf("store: replacing %s: %w", def.Name, err)
	}
	return nil
}

func (s *FileStore) List() ([]*runtime.FlowDefinition, error) {
	s.mu.RLock()
	entries, err := os.ReadDir(s.dir)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("store: listing %s: %w", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)

	defs := make([]*runtime.FlowDefinition, 0, len(names))
	for _, name := range names {
		def, err := s.Load(name)
		if err != nil {
			// A file deleted between ReadDir and Load is not an error.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s *FileStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("store: %s: %w", name, ErrNotFound)
		}
		return fmt.Errorf("store: deleting %s: %w", name, err)
	}
	return nil
}
