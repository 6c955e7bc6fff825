// Package report exports completed quiz results as a spreadsheet.
package report

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/apprend-go/internal/quiz"
)

// SheetName is the worksheet holding the results.
const SheetName = "Résultats"

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// HeaderRow is the row of column titles; results start on the next row.
const HeaderRow = 3

var columns = []any{"Quiz", "Score", "Questions", "Pourcentage", "Terminé le"}

// WriteQuizResults writes one row per completed quiz to w as an XLSX workbook.
func WriteQuizResults(w io.Writer, username string, summaries []quiz.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &[]any{"Étudiant", username}); err != nil {
		return fmt.Errorf("write student row: %w", err)
	}
	header, _ := excelize.CoordinatesToCellName(1, HeaderRow)
	if err := f.SetSheetRow(SheetName, header, &columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), HeaderRow)
	if err := f.SetCellStyle(SheetName, "A1", "A1", bold); err != nil {
		return fmt.Errorf("style student row: %w", err)
	}
	if err := f.SetCellStyle(SheetName, header, last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", "A", 40); err != nil {
		return fmt.Errorf("size columns: %w", err)
	}
	if err := f.SetColWidth(SheetName, "E", "E", 20); err != nil {
		return fmt.Errorf("size columns: %w", err)
	}

	for i, s := range summaries {
		cell, _ := excelize.CoordinatesToCellName(1, HeaderRow+1+i)
		row := []any{
			s.Title,
			s.Score,
			s.Total,
			math.Round(s.Percent()*10) / 10,
			s.CompletedAt.Format("2006-01-02 15:04"),
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write result %d: %w", i, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
