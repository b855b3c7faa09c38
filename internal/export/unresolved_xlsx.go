package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet of an unresolved-rows workbook.
type Sheet struct {
	Name string
	Rows []UnresolvedRow
}

// WriteUnresolvedWorkbook writes every sheet into one xlsx file at path, with
// the same columns and ordering as the CSV reports.
func WriteUnresolvedWorkbook(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("export: workbook %s: no sheets", path)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: mkdir %s: %w", dir, err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("export: workbook style: %w", err)
	}

	for i, sh := range sheets {
		idx, err := f.NewSheet(sh.Name)
		if err != nil {
			return fmt.Errorf("export: sheet %q: %w", sh.Name, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err := writeSheet(f, sh, headerStyle); err != nil {
			return err
		}
	}
	// NewFile always starts with Sheet1
	if sheets[0].Name != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("export: drop default sheet: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("export: save %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sh Sheet, headerStyle int) error {
	for col, h := range unresolvedHeader {
		if err := setCell(f, sh.Name, col+1, 1, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(unresolvedHeader), 1)
	if err := f.SetCellStyle(sh.Name, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}
	if err := f.SetColWidth(sh.Name, "A", "A", 38); err != nil {
		return fmt.Errorf("export: col width: %w", err)
	}

	for i, r := range sortedRows(sh.Rows) {
		for col, v := range r.record() {
			if err := setCell(f, sh.Name, col+1, i+2, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v string) error {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("export: cell %d,%d: %w", col, row, err)
	}
	if err := f.SetCellValue(sheet, name, v); err != nil {
		return fmt.Errorf("export: write %s!%s: %w", sheet, name, err)
	}
	return nil
}
