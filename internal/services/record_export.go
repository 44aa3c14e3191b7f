package services

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	attemptsSheet = "Attempts"
	summarySheet  = "Summary"
)

// ExportTestRecords writes the student's completed attempts and the per-record
// averages to an xlsx workbook.
func (s *recordService) ExportTestRecords(ctx context.Context, studentID string) (*RecordExport, error) {
	s.autoSubmitExpired(ctx, studentID)

	records, err := s.repo.Record().ListAllWithCompleted(ctx, nil, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", attemptsSheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}

	if err := writeRow(f, attemptsSheet, 1, "Record", "Category", "Package", "Score", "Completed At"); err != nil {
		return nil, err
	}
	if err := writeRow(f, summarySheet, 1, "Record", "Average Score", "Attempts", "Created At", "Feedback"); err != nil {
		return nil, err
	}

	attemptRow := 2
	for i, record := range records {
		title := fmt.Sprintf("Attempt %d", i+1)
		for j := range record.Attempts {
			a := &record.Attempts[j]
			if !a.IsCompleted() {
				continue
			}
			if err := writeRow(f, attemptsSheet, attemptRow,
				title,
				a.RecordedCategory(),
				a.RecordedPackageTitle(),
				a.Score(),
				a.CompletedAt.UTC().Format(time.RFC3339),
			); err != nil {
				return nil, err
			}
			attemptRow++
		}

		if err := writeRow(f, summarySheet, i+2,
			title,
			recordAverage(record),
			completedCount(record),
			record.CreatedAt.UTC().Format(time.RFC3339),
			derefString(record.Feedback),
		); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.Info("Exported test records", "student_id", studentID, "records", len(records))
	return &RecordExport{
		FileName: fmt.Sprintf("test-records-%s.xlsx", s.clock().Format("20060102")),
		Data:     buf.Bytes(),
	}, nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("invalid cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("failed to write cell %s: %w", cell, err)
		}
	}
	return nil
}
