// Package voices loads the voice catalog.
//
// The catalog is a JSON array (YAML is accepted too) of entries such as
//
//	{"key": "en_US-lessac-high", "name": "Lessac", "family": "English", "short-region": "US"}
//
// The daemon serves the file verbatim; the worker and the CLI look voices up
// by key.
package voices

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Voice is one catalog entry.
type Voice struct {
	Key    string `yaml:"key" json:"key"`
	Name   string `yaml:"name" json:"name"`
	Family string `yaml:"family" json:"family"`
	Region string `yaml:"short-region" json:"short-region"`
}

// Label is the human-readable form "Name (Family, Region)".
func (v Voice) Label() string {
	return fmt.Sprintf("%s (%s, %s)", v.Name, v.Family, v.Region)
}

// Catalog is an immutable, parsed voice list.
type Catalog struct {
	raw    []byte
	voices []Voice
	byKey  map[string]int
}

// Load reads and parses the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading voice catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw JSON or YAML.
func Parse(data []byte) (*Catalog, error) {
	var list []Voice
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing voice catalog: %w", err)
	}

	c := &Catalog{raw: data, voices: list, byKey: make(map[string]int, len(list))}
	for i, v := range list {
		if v.Key == "" {
			return nil, fmt.Errorf("voice catalog entry %d has no key", i)
		}
		if _, dup := c.byKey[v.Key]; dup {
			return nil, fmt.Errorf("voice catalog has duplicate key %q", v.Key)
		}
		c.byKey[v.Key] = i
	}
	return c, nil
}

// Raw returns the catalog exactly as it was read.
func (c *Catalog) Raw() []byte { return c.raw }

// All returns the voices in catalog order.
func (c *Catalog) All() []Voice {
	out := make([]Voice, len(c.voices))
	copy(out, c.voices)
	return out
}

// Lookup finds a voice by key.
func (c *Catalog) Lookup(key string) (Voice, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Voice{}, false
	}
	return c.voices[i], true
}

// Has reports whether key is in the catalog.
func (c *Catalog) Has(key string) bool {
	_, ok := c.byKey[key]
	return ok
}
