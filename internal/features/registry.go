// Package features holds the product feature registry and its runtime overrides.
package features

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var defaultRegistry []byte

// VariantKind tags how a feature is presented.
type VariantKind string

const (
	VariantLive        VariantKind = "live"
	VariantPlaceholder VariantKind = "placeholder"
	VariantLocked      VariantKind = "locked"
)

// Variant carries the presentation data of one variant kind.
type Variant struct {
	Kind         VariantKind `yaml:"kind" json:"kind"`
	Route        string      `yaml:"route,omitempty" json:"route,omitempty"`
	Message      string      `yaml:"message,omitempty" json:"message,omitempty"`
	RequiredPlan string      `yaml:"required_plan,omitempty" json:"required_plan,omitempty"`
}

// Definition is a registry entry.
type Definition struct {
	Key            string   `yaml:"key" json:"key"`
	Name           string   `yaml:"name" json:"name"`
	Description    string   `yaml:"description" json:"description"`
	Roles          []string `yaml:"roles" json:"roles"`
	DefaultEnabled bool     `yaml:"enabled" json:"default_enabled"`
	Variant        Variant  `yaml:"variant" json:"variant"`
}

// AvailableTo reports whether the feature is offered to role. An empty role matches all.
func (d Definition) AvailableTo(role string) bool {
	if role == "" {
		return true
	}
	for _, r := range d.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// ErrInvalidRegistry indicates a registry document failed validation.
var ErrInvalidRegistry = errors.New("features: invalid registry")

// Registry is the immutable set of feature definitions, in document order.
type Registry struct {
	defs  []Definition
	index map[string]int
}

type document struct {
	Features []Definition `yaml:"features"`
}

// DefaultRegistry parses the embedded registry document.
func DefaultRegistry() (*Registry, error) {
	return Parse(defaultRegistry)
}

// Load reads a registry document from r.
func Load(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse validates and indexes a registry document.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	reg := &Registry{index: make(map[string]int, len(doc.Features))}
	for _, def := range doc.Features {
		def.Key = strings.TrimSpace(def.Key)
		if err := validate(def); err != nil {
			return nil, err
		}
		if _, dup := reg.index[def.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate key %q", ErrInvalidRegistry, def.Key)
		}
		def.Roles = append([]string(nil), def.Roles...)
		reg.index[def.Key] = len(reg.defs)
		reg.defs = append(reg.defs, def)
	}
	return reg, nil
}

func validate(def Definition) error {
	if def.Key == "" {
		return fmt.Errorf("%w: feature key required", ErrInvalidRegistry)
	}
	switch def.Variant.Kind {
	case VariantLive:
		if def.Variant.Route == "" {
			return fmt.Errorf("%w: %s: live variant requires a route", ErrInvalidRegistry, def.Key)
		}
	case VariantPlaceholder:
	case VariantLocked:
		if def.Variant.RequiredPlan == "" {
			return fmt.Errorf("%w: %s: locked variant requires a plan", ErrInvalidRegistry, def.Key)
		}
	default:
		return fmt.Errorf("%w: %s: unknown variant %q", ErrInvalidRegistry, def.Key, def.Variant.Kind)
	}
	return nil
}

// Lookup returns the definition for key.
func (r *Registry) Lookup(key string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	i, ok := r.index[key]
	if !ok {
		return Definition{}, false
	}
	return clone(r.defs[i]), true
}

// All returns a copy of every definition.
func (r *Registry) All() []Definition {
	return r.ForRole("")
}

// ForRole returns copies of the definitions offered to role.
func (r *Registry) ForRole(role string) []Definition {
	if r == nil {
		return nil
	}
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		if def.AvailableTo(role) {
			out = append(out, clone(def))
		}
	}
	return out
}

// Len reports the number of definitions.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.defs)
}

func clone(def Definition) Definition {
	def.Roles = append([]string(nil), def.Roles...)
	return def
}
