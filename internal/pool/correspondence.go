// Package pool implements the pool-level reconciliation stage: indexing
// the ECB and ESMA input trees, classifying pools into matched and
// single-source sets, and merging each pool into one harmonised file.
package pool

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Correspondence is the pool-mapping document: which ECB pool ids match
// which ESMA pool ids, and which pools are known to have temporally
// overlapping records from both feeds.
type Correspondence struct {
	Pools   map[string]PoolMatch `yaml:"pools"`
	Overlap []string             `yaml:"overlap"`
}

// PoolMatch names the ESMA counterpart of an ECB pool.
type PoolMatch struct {
	ESMAPool string `yaml:"esma_pool"`
}

// LoadCorrespondence reads the pool-mapping YAML document.
func LoadCorrespondence(path string) (*Correspondence, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pool: read correspondence %s", path)
	}

	var c Correspondence
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, eris.Wrapf(err, "pool: parse correspondence %s", path)
	}
	if len(c.Pools) == 0 {
		return nil, eris.Errorf("pool: correspondence %s lists no pools", path)
	}
	return &c, nil
}

// OverlapSet returns the dedup allow-list as a set.
func (c *Correspondence) OverlapSet() map[string]bool {
	set := make(map[string]bool, len(c.Overlap))
	for _, id := range c.Overlap {
		set[id] = true
	}
	return set
}

// MatchedECB returns the ECB-side ids of all matched pools, sorted.
func (c *Correspondence) MatchedECB() []string {
	ids := make([]string, 0, len(c.Pools))
	for id := range c.Pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
