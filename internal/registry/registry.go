package registry

import (
	"fmt"
	"log/slog"
	"nowcast-pipeline/internal/core/types"
	"os"

	"gopkg.in/yaml.v2"
)

// Registry holds the dataset and derivative descriptors loaded at startup. It
// is never modified after construction and may be shared between goroutines.
type Registry struct {
	datasets    []Descriptor
	derivatives []Descriptor
}

type registryYAML struct {
	Datasets    []descriptorYAML `yaml:"datasets"`
	Derivatives []descriptorYAML `yaml:"derivatives"`
}

// Load reads a registry file. Any problem with it is a configuration error.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: error reading registry '%s': %w", types.ErrConfiguration, path, err)
	}

	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("registry '%s': %w", path, err)
	}

	slog.Info("loaded registry", "path", path, "datasets", len(reg.datasets), "derivatives", len(reg.derivatives))

	return reg, nil
}

func Parse(data []byte) (*Registry, error) {
	var raw registryYAML
	if err := yaml.UnmarshalStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: error parsing registry: %w", types.ErrConfiguration, err)
	}

	datasets := make([]Descriptor, 0, len(raw.Datasets))
	for i, d := range raw.Datasets {
		desc, err := d.toDescriptor(false)
		if err != nil {
			return nil, fmt.Errorf("%w: dataset %d: %w", types.ErrConfiguration, i, err)
		}
		datasets = append(datasets, desc)
	}

	derivatives := make([]Descriptor, 0, len(raw.Derivatives))
	for i, d := range raw.Derivatives {
		desc, err := d.toDescriptor(true)
		if err != nil {
			return nil, fmt.Errorf("%w: derivative %d: %w", types.ErrConfiguration, i, err)
		}
		derivatives = append(derivatives, desc)
	}

	return New(datasets, derivatives)
}

// New builds a registry from descriptors. Duplicate names are accepted here
// and reported when they are resolved.
func New(datasets, derivatives []Descriptor) (*Registry, error) {
	if len(datasets) == 0 && len(derivatives) == 0 {
		return nil, fmt.Errorf("%w: registry has no datasets", types.ErrConfiguration)
	}

	known := make(map[string]bool, len(datasets))
	for _, d := range datasets {
		known[d.Name] = true
	}
	for _, d := range derivatives {
		for _, src := range d.Sources {
			if !known[src] {
				return nil, fmt.Errorf("%w: derivative '%s' references unknown dataset '%s'", types.ErrConfiguration, d.Name, src)
			}
		}
	}

	for _, dup := range duplicates(datasets) {
		slog.Warn("registry contains duplicate dataset name", "name", dup)
	}
	for _, dup := range duplicates(derivatives) {
		slog.Warn("registry contains duplicate derivative name", "name", dup)
	}

	reg := &Registry{
		datasets:    make([]Descriptor, len(datasets)),
		derivatives: make([]Descriptor, len(derivatives)),
	}
	for i, d := range datasets {
		reg.datasets[i] = cloneDescriptor(d)
		reg.datasets[i].Derived = false
	}
	for i, d := range derivatives {
		reg.derivatives[i] = cloneDescriptor(d)
		reg.derivatives[i].Derived = true
	}

	return reg, nil
}

// Resolve returns the dataset whose name matches exactly (case sensitive).
func (r *Registry) Resolve(name string) (Descriptor, error) {
	return resolve(r.datasets, "dataset", name)
}

// ResolveDerivative is Resolve over the derivative namespace.
func (r *Registry) ResolveDerivative(name string) (Descriptor, error) {
	return resolve(r.derivatives, "derivative", name)
}

func resolve(descriptors []Descriptor, namespace, name string) (Descriptor, error) {
	matches := 0
	var found Descriptor
	for _, d := range descriptors {
		if d.Name == name {
			matches++
			found = d
		}
	}

	switch matches {
	case 0:
		return Descriptor{}, fmt.Errorf("%w: no %s named '%s'", types.ErrDatasetNotFound, namespace, name)
	case 1:
		return cloneDescriptor(found), nil
	default:
		return Descriptor{}, fmt.Errorf("%w: %d %ss named '%s'", types.ErrAmbiguousDataset, matches, namespace, name)
	}
}

func (r *Registry) Datasets() []Descriptor {
	return cloneAll(r.datasets)
}

func (r *Registry) Derivatives() []Descriptor {
	return cloneAll(r.derivatives)
}

func cloneAll(descriptors []Descriptor) []Descriptor {
	out := make([]Descriptor, len(descriptors))
	for i, d := range descriptors {
		out[i] = cloneDescriptor(d)
	}
	return out
}

func cloneDescriptor(d Descriptor) Descriptor {
	d.EngineOptions = cloneOptions(d.EngineOptions)
	if d.Sources != nil {
		d.Sources = append([]string(nil), d.Sources...)
	}
	return d
}

func duplicates(descriptors []Descriptor) []string {
	counts := make(map[string]int, len(descriptors))
	var dups []string
	for _, d := range descriptors {
		counts[d.Name]++
		if counts[d.Name] == 2 {
			dups = append(dups, d.Name)
		}
	}
	return dups
}
