package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"cosmo-migrator/internal/migration/domain/model"
)

// CSVSink appends one line per record to a CSV report, flushing after every row
// so a crashed run still leaves a usable report.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// NewCSVSink creates or truncates path and writes the header.
func NewCSVSink(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit report %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	return &CSVSink{file: f, w: w}, w.Error()
}

func (s *CSVSink) Record(ctx context.Context, rec model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Write(Row(rec)); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
