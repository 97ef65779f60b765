package tabular

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadSheet reads one worksheet of an XLSX file and returns all rows as
// string slices. If sheetName is empty the first sheet is used.
func ReadSheet(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: open workbook %s", path)
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		var ok bool
		sheet, ok = f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("tabular: sheet %q not found in %s", sheetName, path)
		}
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("tabular: workbook %s has no sheets", path)
		}
		sheet = f.Sheets[0]
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
