package export

import (
	"fmt"
	"os"
	"path/filepath"

	"ridesync/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SheetPending    = "Pending"
	SheetDeadLetter = "DeadLetter"

	timeLayout = "2006-01-02 15:04:05"
)

var (
	pendingHeaders = []string{"Sequence", "Operation", "Target", "Enqueued", "Payload"}
	deadHeaders    = []string{"Sequence", "Operation", "Target", "Enqueued", "Failed", "Reason", "Payload"}
)

// WriteQueueReport writes the pending queue and the dead-letter list to an
// XLSX workbook at path, creating parent directories as needed.
func WriteQueueReport(path string, pending []models.QueueItem, dead []models.DeadLetter) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetPending); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	rows := make([][]any, 0, len(pending))
	for _, it := range pending {
		rows = append(rows, []any{it.SequenceID, string(it.OperationKind), it.TargetID, it.EnqueuedAt.UTC().Format(timeLayout), string(it.Payload)})
	}
	if err := writeSheet(f, SheetPending, pendingHeaders, rows, headerStyle); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetDeadLetter); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	rows = make([][]any, 0, len(dead))
	for _, d := range dead {
		rows = append(rows, []any{
			d.Item.SequenceID, string(d.Item.OperationKind), d.Item.TargetID,
			d.Item.EnqueuedAt.UTC().Format(timeLayout), d.FailedAt.UTC().Format(timeLayout),
			d.Reason, string(d.Item.Payload),
		})
	}
	if err := writeSheet(f, SheetDeadLetter, deadHeaders, rows, headerStyle); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any, headerStyle int) error {
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle)

	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}

	_ = f.SetColWidth(sheet, "A", "D", 20)
	_ = f.SetColWidth(sheet, "E", lastCol, 40)
	return nil
}
