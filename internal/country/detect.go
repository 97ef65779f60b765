// Package country implements the country-level stage: classifying each
// pool file into a country, unifying schemas per country, and streaming
// all of a country's pool files into one output.
package country

import (
	"strings"

	"github.com/meridian-data/secmerge/internal/tabular"
)

// Unknown is the bucket for files no detection rule can place.
const Unknown = "UNKNOWN"

// notDisclosedPrefix is the ESMA sentinel for withheld values; a NUTS
// field starting with it carries no usable country information.
const notDisclosedPrefix = "ND"

// rule is one step of the detection cascade. detect returns the
// two-letter country code or "" when the rule does not apply.
type rule struct {
	name   string
	detect func(sample *tabular.Batch, poolID string) string
}

// rules is the ordered cascade; the first rule yielding a value wins.
var rules = []rule{
	{"lender_country", fieldExact("RREL81")},
	{"originator_country", fieldExact("RREL84")},
	{"collateral_nuts", fieldNUTS("RREC6", false)},
	{"obligor_nuts", fieldNUTS("RREL11", true)},
	{"ecb_geographic", fieldNUTS("AR129", true)},
	{"npe_country", firstOf(fieldExact("NPEL20"), fieldExact("NPEL23"))},
	{"pool_id_prefix", fromPoolID},
}

// Detect classifies one pool file's sample rows into a country code.
// Contract: one country per file, derived from the bounded sample.
func Detect(sample *tabular.Batch, poolID string) string {
	for _, r := range rules {
		if code := r.detect(sample, poolID); code != "" {
			return code
		}
	}
	return Unknown
}

// fieldExact accepts a clean two-letter alphabetic value.
func fieldExact(column string) func(*tabular.Batch, string) string {
	return func(sample *tabular.Batch, _ string) string {
		col := sample.Col(column)
		if col < 0 {
			return ""
		}
		for _, row := range sample.Rows {
			v := cell(row, col)
			if len(v) == 2 && isAlpha(v) {
				return strings.ToUpper(v)
			}
		}
		return ""
	}
}

// fieldNUTS takes the first two characters of a NUTS-style region code.
// With skipNotDisclosed set, values carrying the not-disclosed sentinel
// prefix are ignored.
func fieldNUTS(column string, skipNotDisclosed bool) func(*tabular.Batch, string) string {
	return func(sample *tabular.Batch, _ string) string {
		col := sample.Col(column)
		if col < 0 {
			return ""
		}
		for _, row := range sample.Rows {
			v := cell(row, col)
			if len(v) < 2 || !isAlpha(v[:2]) {
				continue
			}
			if skipNotDisclosed && strings.HasPrefix(v, notDisclosedPrefix) {
				continue
			}
			return strings.ToUpper(v[:2])
		}
		return ""
	}
}

func firstOf(fns ...func(*tabular.Batch, string) string) func(*tabular.Batch, string) string {
	return func(sample *tabular.Batch, poolID string) string {
		for _, fn := range fns {
			if code := fn(sample, poolID); code != "" {
				return code
			}
		}
		return ""
	}
}

// fromPoolID extracts the country embedded in RMBM/RMBS pool ids at a
// fixed offset.
func fromPoolID(_ *tabular.Batch, poolID string) string {
	if !strings.HasPrefix(poolID, "RMBM") && !strings.HasPrefix(poolID, "RMBS") {
		return ""
	}
	if len(poolID) < 6 {
		return ""
	}
	code := poolID[4:6]
	if !isAlpha(code) {
		return ""
	}
	return strings.ToUpper(code)
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}
