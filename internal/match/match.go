// Package match pairs ESMA underlying-exposure (UE) files with their
// collateral files and left-joins each pair into one merged CSV, the
// input expected by the pool-level stage.
package match

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/meridian-data/secmerge/internal/tabular"
)

// filePattern matches the ESMA disclosure filename layout:
// 1_<ASSET>_<UE|Collateral>_<IDENTIFIER>_<DATE>_<SEQUENCE>.csv
var filePattern = regexp.MustCompile(`^1_(\w+)_(UE|Collateral)_(.+)_(\d{4}-\d{2}-\d{2})_(\d+)\.csv$`)

// FileInfo is a parsed disclosure filename.
type FileInfo struct {
	AssetType  string
	Category   string // UE or Collateral
	Identifier string
	Date       string
	Sequence   string
	Filename   string
}

// ParseFilename decodes a disclosure filename, returning nil when the
// name does not follow the expected layout.
func ParseFilename(name string) *FileInfo {
	m := filePattern.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	return &FileInfo{
		AssetType:  m[1],
		Category:   m[2],
		Identifier: m[3],
		Date:       m[4],
		Sequence:   m[5],
		Filename:   name,
	}
}

// MergedFilename converts a UE filename to its merged counterpart.
func MergedFilename(ueFilename string) string {
	return strings.Replace(ueFilename, "_UE_", "_UE_Collateral_", 1)
}

// keyRule declares one join-key column pairing: a UE column carrying
// the rule's UE suffix joins the collateral column built from the same
// prefix and the collateral suffix (RREL2 ~ RREC2, NPEL2 ~ NPEC2, ...).
type keyRule struct {
	ueSuffix   string
	collSuffix string
	maxLen     int
}

// keyRules is evaluated in order; the first UE column with a matching
// collateral column wins.
var keyRules = []keyRule{
	{ueSuffix: "L2", collSuffix: "C2", maxLen: 6},
}

// DetectKeys finds the join-key column pair for a UE/collateral header
// combination. Returns ("", "") when no rule applies.
func DetectKeys(ueColumns, collColumns []string) (string, string) {
	collSet := make(map[string]bool, len(collColumns))
	for _, c := range collColumns {
		collSet[c] = true
	}

	for _, rule := range keyRules {
		for _, ueCol := range ueColumns {
			if len(ueCol) > rule.maxLen || !strings.HasSuffix(ueCol, rule.ueSuffix) {
				continue
			}
			prefix := strings.TrimSuffix(ueCol, rule.ueSuffix)
			if prefix == "" {
				continue
			}
			collCol := prefix + rule.collSuffix
			if collSet[collCol] {
				return ueCol, collCol
			}
		}
	}
	return "", ""
}

// collateral columns dropped before the join: metadata already present
// on the UE side, and the *C1 security identifiers duplicating *L1.
func columnsToDrop(collColumns []string, _ string) map[string]bool {
	drop := map[string]bool{
		"Sec_Id":           true,
		"Pool_Cutoff_Date": true,
	}
	for _, c := range collColumns {
		if len(c) <= 6 && strings.HasSuffix(c, "C1") {
			drop[c] = true
		}
	}
	return drop
}

// JoinStats summarizes one pair's merge.
type JoinStats struct {
	UERows      int
	CollRows    int
	MergedRows  int
	MatchedRows int
	UEKey       string
	CollKey     string
}

// LeftJoin merges a UE batch with its collateral batch: every UE row is
// preserved; collateral columns are blank when no collateral row shares
// the key, and a UE row joining several collateral rows is emitted once
// per match.
func LeftJoin(ue, coll *tabular.Batch) (*tabular.Batch, *JoinStats, error) {
	ueKey, collKey := DetectKeys(ue.Header, coll.Header)
	if ueKey == "" {
		return nil, nil, eris.Errorf("match: no join key detected (UE columns %v)", ue.Header)
	}

	drop := columnsToDrop(coll.Header, collKey)
	var keepCols []int
	for i, name := range coll.Header {
		if !drop[name] {
			keepCols = append(keepCols, i)
		}
	}

	header := make([]string, 0, len(ue.Header)+len(keepCols))
	header = append(header, ue.Header...)
	for _, i := range keepCols {
		header = append(header, coll.Header[i])
	}

	collKeyCol := coll.Col(collKey)
	byKey := make(map[string][][]string, len(coll.Rows))
	for _, row := range coll.Rows {
		k := row[collKeyCol]
		byKey[k] = append(byKey[k], row)
	}

	ueKeyCol := ue.Col(ueKey)
	merged := &tabular.Batch{Header: header}
	stats := &JoinStats{
		UERows:   len(ue.Rows),
		CollRows: len(coll.Rows),
		UEKey:    ueKey,
		CollKey:  collKey,
	}

	blank := make([]string, len(keepCols))
	for _, ueRow := range ue.Rows {
		matches := byKey[ueRow[ueKeyCol]]
		if len(matches) == 0 {
			merged.Rows = append(merged.Rows, joinRow(ueRow, blank, nil))
			continue
		}
		stats.MatchedRows++
		for _, collRow := range matches {
			merged.Rows = append(merged.Rows, joinRow(ueRow, collRow, keepCols))
		}
	}
	stats.MergedRows = len(merged.Rows)
	return merged, stats, nil
}

func joinRow(ueRow, collRow []string, keepCols []int) []string {
	out := make([]string, 0, len(ueRow)+len(keepCols))
	out = append(out, ueRow...)
	if keepCols == nil {
		return append(out, collRow...) // collRow is the blank filler
	}
	for _, i := range keepCols {
		if i < len(collRow) {
			out = append(out, collRow[i])
		} else {
			out = append(out, "")
		}
	}
	return out
}
