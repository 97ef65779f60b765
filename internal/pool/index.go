package pool

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Index maps pool ids to their input files for both feeds. ECB pools
// are gzip CSVs named <pool>_*.gz; ESMA pools are the stage-one merged
// CSVs whose pool id is the third-from-last underscore field.
type Index struct {
	ecbDir  string
	esmaDir string
	ECB     map[string][]string // pool id -> file paths, sorted
	ESMA    map[string][]string
}

// BuildIndex scans both input directories and groups files by pool id.
func BuildIndex(ecbDir, esmaDir string) (*Index, error) {
	idx := &Index{
		ecbDir:  ecbDir,
		esmaDir: esmaDir,
		ECB:     make(map[string][]string),
		ESMA:    make(map[string][]string),
	}

	ecbFiles, err := listFiles(ecbDir, ".gz")
	if err != nil {
		return nil, eris.Wrap(err, "pool: index ECB dir")
	}
	for _, name := range ecbFiles {
		id := strings.SplitN(name, "_", 2)[0]
		idx.ECB[id] = append(idx.ECB[id], filepath.Join(ecbDir, name))
	}

	esmaFiles, err := listFiles(esmaDir, ".csv")
	if err != nil {
		return nil, eris.Wrap(err, "pool: index ESMA dir")
	}
	for _, name := range esmaFiles {
		parts := strings.Split(strings.TrimSuffix(name, ".csv"), "_")
		if len(parts) < 3 {
			continue
		}
		id := parts[len(parts)-3]
		idx.ESMA[id] = append(idx.ESMA[id], filepath.Join(esmaDir, name))
	}

	for _, files := range idx.ECB {
		sort.Strings(files)
	}
	for _, files := range idx.ESMA {
		sort.Strings(files)
	}
	return idx, nil
}

func listFiles(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "pool: read %s", dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CompressedSize returns the on-disk byte total of a pool's files for
// one feed. Used only for the large-pool threshold; unreadable files
// count as zero.
func (i *Index) CompressedSize(poolID string, files map[string][]string) int64 {
	var total int64
	for _, path := range files[poolID] {
		if fi, err := os.Stat(path); err == nil {
			total += fi.Size()
		}
	}
	return total
}
