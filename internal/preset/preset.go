// Package preset is the catalog of named session presets.
package preset

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrUnknownPreset = errors.New("unknown preset")

type Category string

const (
	Relaxation    Category = "relaxation"
	Sleep         Category = "sleep"
	Concentration Category = "concentration"
	Meditation    Category = "meditation"
	Special       Category = "special"
	Lucid         Category = "lucid"
	Astral        Category = "astral"
	Remote        Category = "remote"
	Gateway       Category = "gateway"
	Guided        Category = "guided"
)

var categories = []Category{Relaxation, Sleep, Concentration, Meditation, Special, Lucid, Astral, Remote, Gateway, Guided}

func (c Category) Valid() bool {
	return slices.Contains(categories, c)
}

type Descriptor struct {
	ID                 string   `yaml:"id"`
	Name               string   `yaml:"name"`
	Category           Category `yaml:"category"`
	BaseFrequency      float64  `yaml:"base_frequency"`
	BeatFrequency      float64  `yaml:"beat_frequency"`
	Benefits           []string `yaml:"benefits"`
	RecommendedMinutes float64  `yaml:"recommended_minutes"`
	// Script names a guided meditation script, if any.
	Script string `yaml:"script,omitempty"`
}

func (d Descriptor) RecommendedDuration() time.Duration {
	return time.Duration(d.RecommendedMinutes * float64(time.Minute))
}

type Catalog struct {
	list []Descriptor
	byID map[string]int
}

// Parse decodes and validates a YAML preset list.
func Parse(data []byte) (*Catalog, error) {
	var list []Descriptor
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("preset: decode catalog: %w", err)
	}
	c := &Catalog{list: list, byID: make(map[string]int, len(list))}
	for i, d := range list {
		switch {
		case d.ID == "":
			return nil, fmt.Errorf("preset: entry %d has no id", i)
		case !d.Category.Valid():
			return nil, fmt.Errorf("preset %s: invalid category %q", d.ID, d.Category)
		case d.BaseFrequency <= 0:
			return nil, fmt.Errorf("preset %s: base frequency must be positive", d.ID)
		case d.BeatFrequency < 0:
			return nil, fmt.Errorf("preset %s: negative beat frequency", d.ID)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("preset %s: duplicate id", d.ID)
		}
		c.byID[d.ID] = i
	}
	return c, nil
}

//go:embed presets.yaml
var catalogYAML []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default is the built-in catalog, parsed on first use.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(catalogYAML)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

func (c *Catalog) Lookup(id string) (Descriptor, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return clone(c.list[i]), true
}

// Get is Lookup with ErrUnknownPreset for a missing id.
func (c *Catalog) Get(id string) (Descriptor, error) {
	d, ok := c.Lookup(id)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownPreset, id)
	}
	return d, nil
}

func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, len(c.list))
	for i, d := range c.list {
		out[i] = clone(d)
	}
	return out
}

func (c *Catalog) ByCategory(cat Category) []Descriptor {
	var out []Descriptor
	for _, d := range c.list {
		if d.Category == cat {
			out = append(out, clone(d))
		}
	}
	return out
}

func clone(d Descriptor) Descriptor {
	d.Benefits = slices.Clone(d.Benefits)
	return d
}
