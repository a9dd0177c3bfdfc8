package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"nordagri/internal/models"

	"github.com/xuri/excelize/v2"
)

const deadLetterSheet = "Dead letters"

var deadLetterHeaders = []string{"ID", "Operation ID", "Kind", "Retries", "Enqueued", "Failed", "Reason", "Payload"}

// DeadLettersXLSX writes letters to a new workbook in dir and returns its path.
func DeadLettersXLSX(dir string, letters []models.DeadLetter, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(deadLetterSheet)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return "", fmt.Errorf("create header style: %w", err)
	}

	for i, h := range deadLetterHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(deadLetterSheet, cell, h)
		_ = f.SetCellStyle(deadLetterSheet, cell, cell, headerStyle)
	}

	for i, d := range letters {
		row := []any{
			d.ID,
			d.Operation.ID,
			d.Operation.Kind.String(),
			d.Operation.RetryCount,
			formatTime(d.Operation.EnqueuedAt),
			formatTime(d.FailedAt),
			d.Reason,
			string(d.Operation.Payload),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(deadLetterSheet, cell, &row); err != nil {
			return "", fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(deadLetterSheet, "A", "B", 38)
	_ = f.SetColWidth(deadLetterSheet, "C", "F", 20)
	_ = f.SetColWidth(deadLetterSheet, "G", "H", 60)

	filePath := filepath.Join(dir, fmt.Sprintf("deadletters_%s.xlsx", now.UTC().Format("20060102_150405")))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return filePath, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
