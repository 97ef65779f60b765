package pool

import (
	"github.com/meridian-data/secmerge/internal/mapping"
	"github.com/meridian-data/secmerge/internal/tabular"
)

// Harmonised field codes and provenance columns.
const (
	ColLoanID    = "RREL3" // loan identifier
	ColCutoff    = "RREL6" // data cut-off date (ESMA code; ECB AR1 maps here)
	ColAltCutoff = "AR1"   // ECB cut-off date when the template left it unmapped
	ColSource    = "source"
	ColECBPool   = "ecb_pool_id"
	ColESMAPool  = "esma_pool_id"

	SourceECB  = "ECB"
	SourceESMA = "ESMA"
)

// prepared is a harmonised batch plus the per-row (loan id, year-month)
// dedup keys. The keys never appear in output; they exist only for the
// overlap dedup bucket.
type prepared struct {
	batch *tabular.Batch
	keys  []rowKey
}

type rowKey struct {
	loan string
	ym   string
}

// prepareECB harmonises an ECB batch: renames ECB codes to ESMA codes,
// tags provenance, appends the pool id columns, and derives dedup keys.
func prepareECB(b *tabular.Batch, m *mapping.ColumnMapping, ecbPool, esmaPool string) *prepared {
	renamed := &tabular.Batch{Header: m.RenameHeader(b.Header), Rows: b.Rows}
	return tag(renamed, SourceECB, ecbPool, esmaPool)
}

// prepareESMA harmonises an ESMA batch. ESMA files already use the
// target schema, so no renaming is needed.
func prepareESMA(b *tabular.Batch, ecbPool, esmaPool string) *prepared {
	return tag(b, SourceESMA, ecbPool, esmaPool)
}

func tag(b *tabular.Batch, source, ecbPool, esmaPool string) *prepared {
	header := make([]string, 0, len(b.Header)+3)
	header = append(header, b.Header...)
	header = append(header, ColSource, ColECBPool, ColESMAPool)

	dateCol := b.Col(ColCutoff)
	if dateCol < 0 {
		dateCol = b.Col(ColAltCutoff)
	}
	loanCol := b.Col(ColLoanID)

	out := &tabular.Batch{Header: header, Rows: make([][]string, len(b.Rows))}
	keys := make([]rowKey, len(b.Rows))
	for i, row := range b.Rows {
		tagged := make([]string, 0, len(header))
		tagged = append(tagged, row...)
		tagged = append(tagged, source, ecbPool, esmaPool)
		out.Rows[i] = tagged
		keys[i] = rowKey{loan: cellAt(row, loanCol), ym: yearMonth(cellAt(row, dateCol))}
	}
	return &prepared{batch: out, keys: keys}
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// yearMonth truncates a cut-off date to its YYYY-MM prefix, the dedup
// time bucket.
func yearMonth(date string) string {
	if len(date) > 7 {
		return date[:7]
	}
	return date
}
