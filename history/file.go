// Package history records the final variable snapshots of completed
// sessions.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/convoflow/convoflow/runtime"
)

// FileSink appends one JSON line per completed session to a log file.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) Append(_ context.Context, rec runtime.HistoryRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("history: encoding record: %w", err)
	}
	raw = append(raw, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(raw); err != nil {
		return fmt.Errorf("history: appending record: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
