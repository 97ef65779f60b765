package country

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-data/secmerge/internal/tabular"
)

func sample(header []string, rows ...[]string) *tabular.Batch {
	return &tabular.Batch{Header: header, Rows: rows}
}

func TestDetectLenderCountryWinsOverNUTS(t *testing.T) {
	s := sample(
		[]string{"RREL81", "RREC6"},
		[]string{"IT", "DE21"},
	)
	assert.Equal(t, "IT", Detect(s, "POOL1"))
}

func TestDetectOriginatorCountry(t *testing.T) {
	s := sample(
		[]string{"RREL84"},
		[]string{"es"},
	)
	assert.Equal(t, "ES", Detect(s, "POOL1"))
}

func TestDetectCollateralNUTSPrefix(t *testing.T) {
	s := sample(
		[]string{"RREC6"},
		[]string{"FR75"},
	)
	assert.Equal(t, "FR", Detect(s, "POOL1"))
}

func TestDetectObligorNUTSSkipsNotDisclosed(t *testing.T) {
	s := sample(
		[]string{"RREL11"},
		[]string{"ND5"},
		[]string{"PT11"},
	)
	assert.Equal(t, "PT", Detect(s, "POOL1"))
}

func TestDetectECBGeographic(t *testing.T) {
	s := sample(
		[]string{"AR129"},
		[]string{"ND5"},
		[]string{"NL32"},
	)
	assert.Equal(t, "NL", Detect(s, "POOL1"))
}

func TestDetectNPECountryFallsThrough(t *testing.T) {
	s := sample(
		[]string{"NPEL20", "NPEL23"},
		[]string{"", "BE"},
	)
	assert.Equal(t, "BE", Detect(s, "POOL1"))
}

func TestDetectFromPoolID(t *testing.T) {
	s := sample([]string{"OTHER"}, []string{"x"})

	assert.Equal(t, "PT", Detect(s, "RMBMPT000123"))
	assert.Equal(t, "IE", Detect(s, "RMBSIE000456"))
}

func TestDetectPoolIDRequiresKnownPrefix(t *testing.T) {
	s := sample([]string{"OTHER"}, []string{"x"})

	assert.Equal(t, Unknown, Detect(s, "ABSXPT000123"))
	assert.Equal(t, Unknown, Detect(s, "RMBM1"))
	assert.Equal(t, Unknown, Detect(s, "RMBM12XX"))
}

func TestDetectUnknownForEmptySample(t *testing.T) {
	assert.Equal(t, Unknown, Detect(&tabular.Batch{}, "POOL1"))
}

func TestDetectSkipsNonCountryValues(t *testing.T) {
	s := sample(
		[]string{"RREL81"},
		[]string{"123"},
		[]string{"XXL"},
		[]string{"gb"},
	)
	assert.Equal(t, "GB", Detect(s, "POOL1"))
}
