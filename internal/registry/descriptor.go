package registry

import (
	"fmt"
	"nowcast-pipeline/internal/core/types"
	"strings"
)

type RegionScale string

const (
	National RegionScale = "National"
	Region   RegionScale = "Region"
	State    RegionScale = "State"
	County   RegionScale = "County"
)

func ToRegionScale(s string) (RegionScale, error) {
	switch RegionScale(s) {
	case "":
		return Region, nil
	case National, Region, State, County:
		return RegionScale(s), nil
	default:
		return "", fmt.Errorf("invalid region scale '%s'", s)
	}
}

// Descriptor describes one dataset (or derivative) the pipeline can nowcast.
// Descriptors handed out by a Registry must be treated as read-only.
type Descriptor struct {
	Name                 string
	Country              string
	RegionScale          RegionScale
	CasesSubregionSource string
	IncubationPeriod     types.Delay
	ReportingDelay       types.Delay
	GenerationTimeRef    string
	TargetFolder         string
	EngineOptions        map[string]any

	// Set for derivatives only.
	Derived bool
	Sources []string
}

// delaySpec decodes any of the delay notations: a bare number of days, an
// expression string or a mapping.
type delaySpec struct {
	delay types.Delay
}

func (d *delaySpec) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var days float64
	if err := unmarshal(&days); err == nil {
		d.delay = types.FixedDelay(days)
		return d.delay.Validate()
	}

	var expr string
	if err := unmarshal(&expr); err == nil {
		delay, err := ParseDelay(expr)
		if err != nil {
			return err
		}
		d.delay = delay
		return nil
	}

	var mapping types.Delay
	if err := unmarshal(&mapping); err != nil {
		return fmt.Errorf("delay must be a number, an expression or a mapping: %w", err)
	}
	if mapping.Family == "" {
		mapping.Family = types.Fixed
	}
	if err := mapping.Validate(); err != nil {
		return err
	}
	d.delay = mapping
	return nil
}

type descriptorYAML struct {
	Name                 string                 `yaml:"name"`
	Country              string                 `yaml:"country"`
	RegionScale          string                 `yaml:"region_scale"`
	CasesSubregionSource string                 `yaml:"cases_subregion_source"`
	IncubationPeriod     *delaySpec             `yaml:"incubation_period"`
	ReportingDelay       *delaySpec             `yaml:"reporting_delay"`
	GenerationTime       string                 `yaml:"generation_time"`
	TargetFolder         string                 `yaml:"target_folder"`
	EngineOptions        map[string]interface{} `yaml:"engine_options"`
	Sources              []string               `yaml:"sources"`
}

func (raw descriptorYAML) toDescriptor(derived bool) (Descriptor, error) {
	if strings.TrimSpace(raw.Name) == "" {
		return Descriptor{}, fmt.Errorf("name is required")
	}
	if raw.CasesSubregionSource == "" {
		return Descriptor{}, fmt.Errorf("'%s': cases_subregion_source is required", raw.Name)
	}
	if raw.TargetFolder == "" {
		return Descriptor{}, fmt.Errorf("'%s': target_folder is required", raw.Name)
	}
	if raw.IncubationPeriod == nil {
		return Descriptor{}, fmt.Errorf("'%s': incubation_period is required", raw.Name)
	}
	if raw.ReportingDelay == nil {
		return Descriptor{}, fmt.Errorf("'%s': reporting_delay is required", raw.Name)
	}
	if !derived && len(raw.Sources) > 0 {
		return Descriptor{}, fmt.Errorf("'%s': only derivatives may list sources", raw.Name)
	}
	if derived && len(raw.Sources) == 0 {
		return Descriptor{}, fmt.Errorf("'%s': derivative must list its source datasets", raw.Name)
	}

	scale, err := ToRegionScale(raw.RegionScale)
	if err != nil {
		return Descriptor{}, fmt.Errorf("'%s': %w", raw.Name, err)
	}

	options, err := normalizeOptions(raw.EngineOptions)
	if err != nil {
		return Descriptor{}, fmt.Errorf("'%s': engine_options: %w", raw.Name, err)
	}

	country := raw.Country
	if country == "" {
		country = strings.ToLower(raw.Name)
	}

	return Descriptor{
		Name:                 raw.Name,
		Country:              country,
		RegionScale:          scale,
		CasesSubregionSource: raw.CasesSubregionSource,
		IncubationPeriod:     raw.IncubationPeriod.delay,
		ReportingDelay:       raw.ReportingDelay.delay,
		GenerationTimeRef:    raw.GenerationTime,
		TargetFolder:         raw.TargetFolder,
		EngineOptions:        options,
		Derived:              derived,
		Sources:              raw.Sources,
	}, nil
}

// normalizeOptions turns the map[interface{}]interface{} trees produced by
// yaml.v2 into string keyed maps so options can be encoded as JSON.
func normalizeOptions(options map[string]interface{}) (map[string]any, error) {
	out := make(map[string]any, len(options))
	for k, v := range options {
		nv, err := normalizeOption(v)
		if err != nil {
			return nil, fmt.Errorf("'%s': %w", k, err)
		}
		out[k] = nv
	}
	return out, nil
}

func normalizeOption(v interface{}) (any, error) {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]any, len(val))
		for k, item := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			nv, err := normalizeOption(item)
			if err != nil {
				return nil, fmt.Errorf("'%s': %w", key, err)
			}
			out[key] = nv
		}
		return out, nil
	case map[string]interface{}:
		return normalizeOptions(val)
	case []interface{}:
		out := make([]any, len(val))
		for i, item := range val {
			nv, err := normalizeOption(item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return val, nil
	}
}

func cloneOptions(options map[string]any) map[string]any {
	out := make(map[string]any, len(options))
	for k, v := range options {
		out[k] = cloneOption(v)
	}
	return out
}

func cloneOption(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneOptions(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneOption(item)
		}
		return out
	default:
		return val
	}
}
