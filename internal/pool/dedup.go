package pool

import "github.com/meridian-data/secmerge/internal/tabular"

// Deduper applies the overlap policy for allow-listed pools: ESMA is
// authoritative for any (loan id, year-month) both feeds report, ECB
// supplies everything else. All ESMA rows pass through; an ECB row is
// dropped only when its key collides with an ESMA key.
type Deduper struct {
	esmaKeys map[rowKey]struct{}
	dropped  int64
}

// NewDeduper creates an empty deduper.
func NewDeduper() *Deduper {
	return &Deduper{esmaKeys: make(map[rowKey]struct{})}
}

// ObserveESMA records the keys of an ESMA batch. Must be called for
// every ESMA batch of the pool before any ECB batch is filtered.
func (d *Deduper) ObserveESMA(p *prepared) {
	for _, k := range p.keys {
		d.esmaKeys[k] = struct{}{}
	}
}

// FilterECB drops ECB rows whose key an ESMA row already covers,
// preserving the surviving rows' relative order.
func (d *Deduper) FilterECB(p *prepared) *tabular.Batch {
	return d.filterECB(p, true)
}

// filterECB applies the policy; count toggles the drop counter so a
// schema scan preceding the write pass does not double-count drops.
func (d *Deduper) filterECB(p *prepared, count bool) *tabular.Batch {
	kept := make([][]string, 0, len(p.batch.Rows))
	for i, row := range p.batch.Rows {
		if _, dup := d.esmaKeys[p.keys[i]]; dup {
			if count {
				d.dropped++
			}
			continue
		}
		kept = append(kept, row)
	}
	return &tabular.Batch{Header: p.batch.Header, Rows: kept}
}

// Dropped reports how many ECB rows the policy removed.
func (d *Deduper) Dropped() int64 { return d.dropped }
