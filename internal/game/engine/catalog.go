package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// builtins maps every game type compiled into the binary to its constructor.
var builtins = map[string]Factory{
	TicTacToeType: NewTicTacToeEngine,
}

// yamlCatalog is the top-level YAML structure of the game catalogue file.
type yamlCatalog struct {
	Games []yamlGame `yaml:"games"`
}

// yamlGame is the YAML representation of one catalogue entry.
type yamlGame struct {
	Type    string `yaml:"type"`
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled"`
}

// CatalogEntry is one enabled game type with its display name.
type CatalogEntry struct {
	Type string
	Name string
}

// LoadCatalogFromFile reads a game catalogue YAML file.
//
// Precondition: path must point to a readable YAML catalogue.
// Postcondition: Returns the enabled entries or a non-nil error.
func LoadCatalogFromFile(path string) ([]CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading game catalogue %s: %w", path, err)
	}
	return LoadCatalogFromBytes(data)
}

// LoadCatalogFromBytes parses a game catalogue.
//
// Entries default to enabled. Every type must name a builtin ruleset and
// appear at most once.
//
// Postcondition: Returns the enabled entries in file order or a non-nil error.
func LoadCatalogFromBytes(data []byte) ([]CatalogEntry, error) {
	var file yamlCatalog
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing game catalogue YAML: %w", err)
	}

	seen := make(map[string]bool, len(file.Games))
	var out []CatalogEntry
	for i, g := range file.Games {
		if g.Type == "" {
			return nil, fmt.Errorf("game catalogue entry %d: type must not be empty", i)
		}
		if _, ok := builtins[g.Type]; !ok {
			return nil, fmt.Errorf("game catalogue entry %d: unknown game type %q", i, g.Type)
		}
		if seen[g.Type] {
			return nil, fmt.Errorf("game catalogue entry %d: duplicate game type %q", i, g.Type)
		}
		seen[g.Type] = true
		if g.Enabled != nil && !*g.Enabled {
			continue
		}
		out = append(out, CatalogEntry{Type: g.Type, Name: g.Name})
	}
	return out, nil
}

// NewRegistryFromCatalog registers the builtin constructor of every entry.
//
// Postcondition: Returns a populated Registry or a non-nil error.
func NewRegistryFromCatalog(entries []CatalogEntry) (*Registry, error) {
	reg := NewRegistry()
	for _, e := range entries {
		f, ok := builtins[e.Type]
		if !ok {
			return nil, fmt.Errorf("unknown game type %q", e.Type)
		}
		if err := reg.Register(e.Type, e.Name, f); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// DefaultRegistry returns a Registry holding every builtin ruleset.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	// Builtin keys are unique and non-empty, so Register cannot fail here.
	_ = reg.Register(TicTacToeType, "Tic-Tac-Toe", NewTicTacToeEngine)
	return reg
}
