package audit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cosmo-migrator/internal/migration/domain/model"

	"github.com/xuri/excelize/v2"
)

const (
	reportSheet  = "Migration"
	summarySheet = "Summary"
)

// XLSXSink builds a workbook with one row per record and a per-kind summary
// sheet. The file is written on Close.
type XLSXSink struct {
	mu     sync.Mutex
	path   string
	file   *excelize.File
	row    int
	counts map[model.Kind]map[model.AuditStatus]int
}

// NewXLSXSink prepares a workbook that Close saves to path.
func NewXLSXSink(path string) (*XLSXSink, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetSheetRow(reportSheet, "A1", toRow(Header)); err != nil {
		f.Close()
		return nil, err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		err = f.SetRowStyle(reportSheet, 1, 1, style)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return &XLSXSink{
		path:   path,
		file:   f,
		row:    1,
		counts: make(map[model.Kind]map[model.AuditStatus]int),
	}, nil
}

func toRow(values []string) *[]interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return &row
}

func (s *XLSXSink) Record(ctx context.Context, rec model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	if err := s.file.SetSheetRow(reportSheet, cell, toRow(Row(rec))); err != nil {
		return err
	}
	byStatus, ok := s.counts[rec.Kind]
	if !ok {
		byStatus = make(map[model.AuditStatus]int)
		s.counts[rec.Kind] = byStatus
	}
	byStatus[rec.Status]++
	return nil
}

func (s *XLSXSink) writeSummary() error {
	if _, err := s.file.NewSheet(summarySheet); err != nil {
		return err
	}
	statuses := []model.AuditStatus{model.AuditMigrated, model.AuditSkipped, model.AuditFailed, model.AuditFiltered}
	header := []interface{}{"RESOURCE"}
	for _, st := range statuses {
		header = append(header, string(st))
	}
	if err := s.file.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return err
	}

	kinds := make([]model.Kind, 0, len(s.counts))
	for k := range s.counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Rank() < kinds[j].Rank() })
	for i, k := range kinds {
		row := []interface{}{string(k)}
		for _, st := range statuses {
			row = append(row, s.counts[k][st])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := s.file.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// Close writes the summary sheet and saves the workbook.
func (s *XLSXSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.file.Close()

	if err := s.writeSummary(); err != nil {
		return fmt.Errorf("failed to build audit summary: %w", err)
	}
	if err := s.file.SaveAs(s.path); err != nil {
		return fmt.Errorf("failed to save audit workbook %s: %w", s.path, err)
	}
	return nil
}
