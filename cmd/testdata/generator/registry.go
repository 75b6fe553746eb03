package generator

import (
	"slices"

	"github.com/pkg/errors"
)

// ErrUnknownGenerator is returned for names missing from the registry.
var ErrUnknownGenerator = errors.New("unknown generator")

// Registry maps executor names to the generator of their input format.
var Registry = map[string]func(Options) Generator{
	"actioncount": func(o Options) Generator { return &ActionCountGenerator{UserCount: o.Users} },
	"wordcount":   func(o Options) Generator { return &ActionCountGenerator{UserCount: o.Users} }, // Same format as actioncount
	"maxvalue":    func(o Options) Generator { return &MetricGenerator{KeyCount: o.Keys} },
	"average":     func(o Options) Generator { return &MetricGenerator{KeyCount: o.Keys} }, // Same format as maxvalue
	"urldedup":    func(o Options) Generator { return &URLGenerator{DomainCount: o.Keys} },
	"statecount":  func(o Options) Generator { return &PersonGenerator{PersonCount: o.Users} },
}

// Get returns a generator by name
func Get(name string, opts Options) (Generator, error) {
	factory, exists := Registry[name]
	if !exists {
		return nil, errors.Wrapf(ErrUnknownGenerator, "%q", name)
	}
	return factory(opts), nil
}

// List returns all available generator names, sorted.
func List() []string {
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
