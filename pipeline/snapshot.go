package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"downtime/ml"
)

// SnapshotStore keeps the single current dataset on disk. Uploads replace it
// atomically and never interleave with a training read.
type SnapshotStore struct {
	path string
	mu   sync.RWMutex
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

func (s *SnapshotStore) Path() string {
	return s.path
}

// Save parses r and replaces the snapshot with the parsed table. A file that
// fails to parse leaves the previous snapshot in place.
func (s *SnapshotStore) Save(r io.Reader) (*ml.Table, error) {
	table, err := ReadTable(r)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ml.WrapError(ml.KindIO, err, "create dataset directory")
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return nil, ml.WrapError(ml.KindIO, err, "create dataset snapshot")
	}
	defer os.Remove(tmp.Name())

	if err := WriteTable(tmp, table); err != nil {
		tmp.Close()
		return nil, ml.WrapError(ml.KindIO, err, "write dataset snapshot")
	}
	if err := tmp.Close(); err != nil {
		return nil, ml.WrapError(ml.KindIO, err, "write dataset snapshot")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return nil, ml.WrapError(ml.KindIO, err, "replace dataset snapshot")
	}
	return table, nil
}

func (s *SnapshotStore) Load() (*ml.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &ml.Error{Kind: ml.KindIO, Message: "no dataset uploaded yet; upload a CSV file using the /upload endpoint first"}
	}
	if err != nil {
		return nil, ml.WrapError(ml.KindIO, err, "open dataset snapshot")
	}
	defer file.Close()

	table, err := ReadTable(file)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", s.path, err)
	}
	return table, nil
}
