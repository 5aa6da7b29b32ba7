package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed catalog_embed.yaml
var embeddedCatalog []byte

// Entry describes one candidate model for a role.
type Entry struct {
	Role     Role    `yaml:"-"`
	ID       string  `yaml:"id"`
	MemoryGB float64 `yaml:"memory_gb"`
	Fallback string  `yaml:"fallback,omitempty"`
}

// Catalog holds the candidate models per role. Loaded once, never
// mutated at runtime; all accessors return copies, so concurrent reads
// are safe.
type Catalog struct {
	roles map[Role][]Entry
}

type catalogFile struct {
	Roles map[string][]Entry `yaml:"roles"`
}

// LoadEmbedded loads the built-in model catalog.
func LoadEmbedded() (*Catalog, error) {
	return LoadFromBytes(embeddedCatalog)
}

// LoadFromFile loads a catalog override from disk.
func LoadFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses a YAML byte slice into a Catalog.
func LoadFromBytes(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}

	c := &Catalog{roles: make(map[Role][]Entry, len(file.Roles))}
	for roleName, entries := range file.Roles {
		role := Role(roleName)
		if !role.IsValid() {
			return nil, fmt.Errorf("unknown role in catalog: %q", roleName)
		}

		withRole := make([]Entry, len(entries))
		for i, e := range entries {
			e.Role = role
			withRole[i] = e
		}
		c.roles[role] = withRole
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Catalog) validate() error {
	if len(c.roles[RolePrimary]) == 0 {
		return fmt.Errorf("model catalog has no primary entries")
	}

	for role, entries := range c.roles {
		seen := make(map[string]bool, len(entries))
		prevCost := 0.0

		for i, e := range entries {
			if e.ID == "" {
				return fmt.Errorf("role %s: entry at index %d has no id", role, i)
			}
			if e.MemoryGB <= 0 {
				return fmt.Errorf("model %q: memory_gb must be positive", e.ID)
			}
			if seen[e.ID] {
				return fmt.Errorf("role %s: duplicate model id %q", role, e.ID)
			}
			seen[e.ID] = true

			// Ordered most to least capable
			if i > 0 && e.MemoryGB > prevCost {
				return fmt.Errorf("role %s: entries not ordered by capability (%q costs more than its predecessor)", role, e.ID)
			}
			prevCost = e.MemoryGB
		}

		// Fallbacks resolve within the same role
		for _, e := range entries {
			if e.Fallback == "" {
				continue
			}
			if e.Fallback == e.ID {
				return fmt.Errorf("model %q: fallback points to itself", e.ID)
			}
			if !seen[e.Fallback] {
				return fmt.Errorf("model %q: fallback %q not found in role %s", e.ID, e.Fallback, role)
			}
		}
	}

	return nil
}

// Entries returns the ordered candidate list for a role, most capable
// first. The returned slice is a copy.
func (c *Catalog) Entries(role Role) []Entry {
	entries := c.roles[role]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Lookup finds an entry by role and id.
func (c *Catalog) Lookup(role Role, id string) (Entry, bool) {
	for _, e := range c.roles[role] {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// NextFallback resolves an entry's fallback within its role.
func (c *Catalog) NextFallback(e Entry) (Entry, bool) {
	if e.Fallback == "" {
		return Entry{}, false
	}
	return c.Lookup(e.Role, e.Fallback)
}
