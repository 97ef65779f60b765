// Package mapping builds the bidirectional ECB/ESMA column-code
// translation tables from the ESMA template workbook.
package mapping

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/meridian-data/secmerge/internal/tabular"
)

// Template workbook column headers.
const (
	colESMACode = "FIELD CODE"
	colESMAName = "FIELD NAME"
	colECBCode  = "For info: existing ECB or EBA NPL template field code"
)

// ColumnMapping holds the immutable code translation tables. Built once
// per run; never mutated afterwards.
type ColumnMapping struct {
	esmaToECB map[string]string
	ecbToESMA map[string]string
}

// Load reads the template workbook and builds both tables. Rows with a
// blank ECB code are ignored. When several ESMA codes map to one ECB
// code, the entry whose ESMA field name contains "New" wins; otherwise
// the first encountered row wins.
func Load(path, sheet string) (*ColumnMapping, error) {
	rows, err := tabular.ReadSheet(path, sheet)
	if err != nil {
		return nil, eris.Wrap(err, "mapping: read template")
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (*ColumnMapping, error) {
	if len(rows) == 0 {
		return nil, eris.New("mapping: template has no rows")
	}

	header := rows[0]
	esmaIdx, nameIdx, ecbIdx := -1, -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case colESMACode:
			esmaIdx = i
		case colESMAName:
			nameIdx = i
		case colECBCode:
			ecbIdx = i
		}
	}
	if esmaIdx < 0 || nameIdx < 0 || ecbIdx < 0 {
		return nil, eris.Errorf("mapping: template missing required columns (have %v)", header)
	}

	m := &ColumnMapping{
		esmaToECB: make(map[string]string),
		ecbToESMA: make(map[string]string),
	}

	for _, row := range rows[1:] {
		cell := func(i int) string {
			if i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		esmaCode, esmaName, ecbCode := cell(esmaIdx), cell(nameIdx), cell(ecbIdx)
		if esmaCode == "" || ecbCode == "" {
			continue
		}

		// ESMA -> ECB: first encountered wins.
		if _, ok := m.esmaToECB[esmaCode]; !ok {
			m.esmaToECB[esmaCode] = ecbCode
		}

		// ECB -> ESMA: the "New" template variant wins over an earlier
		// entry; otherwise first encountered wins.
		if _, ok := m.ecbToESMA[ecbCode]; !ok {
			m.ecbToESMA[ecbCode] = esmaCode
		} else if strings.Contains(esmaName, "New") {
			m.ecbToESMA[ecbCode] = esmaCode
		}
	}

	if len(m.ecbToESMA) == 0 {
		return nil, eris.New("mapping: template yielded no usable code pairs")
	}
	return m, nil
}

// ToESMA translates an ECB field code, returning the input unchanged
// when no mapping exists.
func (m *ColumnMapping) ToESMA(ecbCode string) string {
	if esma, ok := m.ecbToESMA[ecbCode]; ok {
		return esma
	}
	return ecbCode
}

// ToECB translates an ESMA field code, returning the input unchanged
// when no mapping exists.
func (m *ColumnMapping) ToECB(esmaCode string) string {
	if ecb, ok := m.esmaToECB[esmaCode]; ok {
		return ecb
	}
	return esmaCode
}

// RenameHeader returns a copy of header with every ECB code replaced by
// its ESMA equivalent.
func (m *ColumnMapping) RenameHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = m.ToESMA(h)
	}
	return out
}

// Len reports the number of ECB->ESMA pairs.
func (m *ColumnMapping) Len() int { return len(m.ecbToESMA) }
