package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ammlab/internal/model"
)

// JsonlStorage keeps one scenario report per line. A batch is encoded in
// full before the file is touched, so a report that fails to encode leaves
// the file as it was.
type JsonlStorage struct {
	path string

	mu      sync.Mutex
	dirMade bool
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

func (s *JsonlStorage) PutReportBatch(reports []model.ScenarioReport) error {
	if len(reports) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range reports {
		if err := enc.Encode(&reports[i]); err != nil {
			return fmt.Errorf("encode report %s: %w", reports[i].RunID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirMade {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
		s.dirMade = true
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("append %d reports: %w", len(reports), err)
	}
	return f.Close()
}
