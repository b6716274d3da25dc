package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	scoresSheet  = "Scores"
	cellLimit    = 32000 // excelize rejects cells over 32767 characters
)

// WriteScoreWorkbook writes one summary row per query and one score row per
// retrieved chunk to an .xlsx file.
func WriteScoreWorkbook(path string, results []QueryResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if _, err := f.NewSheet(scoresSheet); err != nil {
		return fmt.Errorf("adding sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}

	summaryHeader := []any{"Query", "Terms", "Matched Chunks", "Top Score"}
	if err := writeRow(f, summarySheet, 1, summaryHeader); err != nil {
		return err
	}
	scoresHeader := []any{"Query", "Rank", "Score", "Chunk", "Exact", "Occurrence", "Expansion", "Matched Terms", "Content"}
	if err := writeRow(f, scoresSheet, 1, scoresHeader); err != nil {
		return err
	}
	f.SetCellStyle(summarySheet, "A1", "D1", bold)
	f.SetCellStyle(scoresSheet, "A1", "I1", bold)

	row := 2
	for i, res := range results {
		top := 0
		if len(res.Chunks) > 0 {
			top = res.Chunks[0].Score
		}
		if err := writeRow(f, summarySheet, i+2, []any{res.Query, strings.Join(res.Terms, ", "), len(res.Chunks), top}); err != nil {
			return err
		}

		for rank, ch := range res.Chunks {
			b := res.Breakdowns[rank]
			values := []any{
				res.Query, rank + 1, ch.Score, ch.Position,
				b.Exact, b.Occurrence, b.Expansion, strings.Join(b.Matched, ", "),
				truncate(ch.Content, cellLimit),
			}
			if err := writeRow(f, scoresSheet, row, values); err != nil {
				return err
			}
			row++
		}
	}

	f.SetColWidth(summarySheet, "A", "B", 40)
	f.SetColWidth(scoresSheet, "A", "A", 40)
	f.SetColWidth(scoresSheet, "I", "I", 80)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s!%s: %w", sheet, cell, err)
	}
	return nil
}
