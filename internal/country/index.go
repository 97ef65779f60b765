package country

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-data/secmerge/internal/pool"
	"github.com/meridian-data/secmerge/internal/tabular"
)

// File is one pool-level output assigned to a country.
type File struct {
	Path    string
	Pool    string
	Folder  string // matched / ecb_only / esma_only
	Country string
}

// Index maps country codes to their contributing files, in a
// deterministic order (folder, then filename). It is rebuilt from a
// bounded sample of each file on every run.
type Index struct {
	Files     []File
	ByCountry map[string][]File
}

// BuildIndex scans the three pool-stage output folders, samples each
// file, and groups files by detected country.
func BuildIndex(inputDir string, sampleRows int) (*Index, error) {
	log := zap.L().With(zap.String("component", "country.index"))

	idx := &Index{ByCountry: make(map[string][]File)}

	for _, folder := range []string{pool.StageMatched, pool.StageECBOnly, pool.StageESMAOnly} {
		dir := filepath.Join(inputDir, folder)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, eris.Wrapf(err, "country: read %s", dir)
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			poolID := strings.TrimSuffix(name, ".csv")

			sample, err := tabular.ReadSample(path, sampleRows)
			if err != nil {
				// A finalized pool file should always be readable; an
				// unreadable one lands in UNKNOWN rather than vanishing.
				log.Warn("could not sample pool file", zap.String("file", path), zap.Error(err))
				sample = &tabular.Batch{}
			}

			f := File{
				Path:    path,
				Pool:    poolID,
				Folder:  folder,
				Country: Detect(sample, poolID),
			}
			idx.Files = append(idx.Files, f)
			idx.ByCountry[f.Country] = append(idx.ByCountry[f.Country], f)
		}
	}

	log.Info("country index built",
		zap.Int("files", len(idx.Files)),
		zap.Int("countries", len(idx.ByCountry)),
	)
	return idx, nil
}

// Countries returns the detected country codes, sorted.
func (i *Index) Countries() []string {
	codes := make([]string, 0, len(i.ByCountry))
	for code := range i.ByCountry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
