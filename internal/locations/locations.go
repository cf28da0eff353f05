package locations

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locations.yaml
var embedded []byte

// Governorate is a top-level division and the delegations (cities) it owns.
type Governorate struct {
	Name        string   `yaml:"name" json:"name"`
	Delegations []string `yaml:"delegations" json:"delegations"`
}

// Reference is the static location data used for search matching.
// It is read-only once built.
type Reference struct {
	Governorates []Governorate `yaml:"governorates" json:"tunisianGovernorates"`
	CountryNames []string      `yaml:"countries" json:"countries"`

	byName map[string]int
}

// Parse decodes a YAML reference document.
func Parse(data []byte) (*Reference, error) {
	var ref Reference
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("parse locations: %w", err)
	}
	if len(ref.Governorates) == 0 {
		return nil, fmt.Errorf("parse locations: no governorates")
	}
	ref.byName = make(map[string]int, len(ref.Governorates))
	for i, g := range ref.Governorates {
		if g.Name == "" {
			return nil, fmt.Errorf("parse locations: governorate %d has no name", i)
		}
		if _, dup := ref.byName[g.Name]; dup {
			return nil, fmt.Errorf("parse locations: duplicate governorate %q", g.Name)
		}
		ref.byName[g.Name] = i
	}
	return &ref, nil
}

// Load reads a reference document from path.
func Load(path string) (*Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations: %w", err)
	}
	return Parse(data)
}

var (
	defaultOnce sync.Once
	defaultRef  *Reference
)

// Default returns the built-in Tunisian reference data.
func Default() *Reference {
	defaultOnce.Do(func() {
		ref, err := Parse(embedded)
		if err != nil {
			panic(err)
		}
		defaultRef = ref
	})
	return defaultRef
}

func (r *Reference) IsGovernorate(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Delegations returns the delegations of the named governorate.
func (r *Reference) Delegations(governorate string) ([]string, bool) {
	i, ok := r.byName[governorate]
	if !ok {
		return nil, false
	}
	return r.Governorates[i].Delegations, true
}

// HasDelegation reports whether city is listed under governorate.
func (r *Reference) HasDelegation(governorate, city string) bool {
	ds, ok := r.Delegations(governorate)
	return ok && slices.Contains(ds, city)
}

// GovernorateOf returns the first governorate listing city as a delegation.
func (r *Reference) GovernorateOf(city string) (string, bool) {
	for _, g := range r.Governorates {
		if slices.Contains(g.Delegations, city) {
			return g.Name, true
		}
	}
	return "", false
}

func (r *Reference) Countries() []string {
	return r.CountryNames
}
