package country

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/meridian-data/secmerge/internal/tabular"
)

// UnifiedSchema reads only the header row of every contributing file
// and returns the sorted union of their column names. Sorting makes the
// unified order identical across re-runs for the same file set.
func UnifiedSchema(files []File) ([]string, error) {
	seen := make(map[string]bool)
	for _, f := range files {
		header, err := tabular.ReadHeader(f.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "country: header of %s", f.Path)
		}
		for _, name := range header {
			seen[name] = true
		}
	}

	schema := make([]string, 0, len(seen))
	for name := range seen {
		schema = append(schema, name)
	}
	sort.Strings(schema)
	return schema, nil
}
