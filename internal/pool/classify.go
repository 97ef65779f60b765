package pool

import (
	"sort"
)

// Stage directory names under the output root. They double as
// checkpoint stage identifiers.
const (
	StageMatched  = "matched"
	StageECBOnly  = "ecb_only"
	StageESMAOnly = "esma_only"
)

// MatchedPair names one pool under both feeds' identifier schemes.
type MatchedPair struct {
	ECB  string
	ESMA string
}

// Classification is the three-way partition of the pool universe. Every
// discovered pool id lands in exactly one bucket.
type Classification struct {
	Matched  []MatchedPair
	ECBOnly  []string
	ESMAOnly []string
}

// Classify partitions pool ids using the correspondence table: every
// pair the table lists is matched; any remaining id found on only one
// side is single-source. Output ordering is deterministic.
func Classify(idx *Index, corr *Correspondence) *Classification {
	cls := &Classification{}

	matchedECB := make(map[string]bool, len(corr.Pools))
	matchedESMA := make(map[string]bool, len(corr.Pools))
	for _, ecbID := range corr.MatchedECB() {
		esmaID := corr.Pools[ecbID].ESMAPool
		matchedECB[ecbID] = true
		matchedESMA[esmaID] = true
		cls.Matched = append(cls.Matched, MatchedPair{ECB: ecbID, ESMA: esmaID})
	}

	for id := range idx.ECB {
		if !matchedECB[id] {
			cls.ECBOnly = append(cls.ECBOnly, id)
		}
	}
	for id := range idx.ESMA {
		if !matchedESMA[id] {
			cls.ESMAOnly = append(cls.ESMAOnly, id)
		}
	}

	sort.Strings(cls.ECBOnly)
	sort.Strings(cls.ESMAOnly)
	return cls
}
