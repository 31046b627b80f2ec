// Package modules holds the module registry and the built-in modules.
package modules

import (
	"fmt"
	"slices"

	"github.com/san-kum/cropsim/internal/dynamo"
)

// Constructor creates a module, resolving its handles through the binder.
type Constructor func(b *dynamo.Binder) (dynamo.Module, error)

type entry struct {
	desc dynamo.Descriptor
	New  Constructor
}

// Registry maps module names to their declared metadata and constructors.
type Registry struct {
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Default returns a registry with every built-in module registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(totalBiomassDescriptor, newTotalBiomass)
	r.Register(lightUseCanopyDescriptor, newLightUseCanopy)
	r.Register(thermalTimeDescriptor, newThermalTime)
	r.Register(GrowthDescriptor, NewGrowth)
	r.Register(emptySenescenceDescriptor, newEmptySenescence)
	return r
}

// Register adds or replaces a module.
func (r *Registry) Register(desc dynamo.Descriptor, fn Constructor) {
	r.entries[desc.Name] = entry{desc: desc, New: fn}
}

func (r *Registry) Describe(name string) (dynamo.Descriptor, error) {
	e, ok := r.entries[name]
	if !ok {
		return dynamo.Descriptor{}, fmt.Errorf("%w: %s", dynamo.ErrUnknownModule, name)
	}
	d := e.desc
	d.Inputs = slices.Clone(d.Inputs)
	d.Outputs = slices.Clone(d.Outputs)
	return d, nil
}

func (r *Registry) Inputs(name string) ([]string, error) {
	d, err := r.Describe(name)
	return d.Inputs, err
}

func (r *Registry) Outputs(name string) ([]string, error) {
	d, err := r.Describe(name)
	return d.Outputs, err
}

func (r *Registry) Create(name string, b *dynamo.Binder) (dynamo.Module, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrUnknownModule, name)
	}
	m, err := e.New(b)
	if err != nil {
		return nil, err
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// List returns every registered descriptor sorted by name.
func (r *Registry) List() []dynamo.Descriptor {
	out := make([]dynamo.Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	slices.SortFunc(out, func(a, b dynamo.Descriptor) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

var _ dynamo.Factory = (*Registry)(nil)

type base struct {
	name string
	kind dynamo.Kind
}

func (m base) Name() string      { return m.name }
func (m base) Kind() dynamo.Kind { return m.kind }
