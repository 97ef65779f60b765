package pool

import (
	"sort"

	"github.com/meridian-data/secmerge/internal/tabular"
)

// schemaAccum collects the set of columns that carry at least one
// non-blank value across a pool's prepared batches. The pool output
// keeps only these columns, in sorted order, so re-runs produce
// identical files.
type schemaAccum struct {
	nonEmpty map[string]bool
}

func newSchemaAccum() *schemaAccum {
	return &schemaAccum{nonEmpty: make(map[string]bool)}
}

func (s *schemaAccum) observe(b *tabular.Batch) {
	for col, name := range b.Header {
		if s.nonEmpty[name] {
			continue
		}
		for _, row := range b.Rows {
			if col < len(row) && row[col] != "" {
				s.nonEmpty[name] = true
				break
			}
		}
	}
}

func (s *schemaAccum) sorted() []string {
	cols := make([]string, 0, len(s.nonEmpty))
	for name := range s.nonEmpty {
		cols = append(cols, name)
	}
	sort.Strings(cols)
	return cols
}

// project arranges a batch's rows into the target schema order, filling
// columns the batch lacks with the empty null marker.
func project(b *tabular.Batch, schema []string) [][]string {
	src := make([]int, len(schema))
	for i, name := range schema {
		src[i] = b.Col(name)
	}

	out := make([][]string, len(b.Rows))
	for r, row := range b.Rows {
		projected := make([]string, len(schema))
		for i, col := range src {
			if col >= 0 && col < len(row) {
				projected[i] = row[col]
			}
		}
		out[r] = projected
	}
	return out
}
