package nn

import (
	"fmt"
	"math/rand"

	"spikeprop/internal/model"
)

// Range is a half-open uniform interval [Min, Max).
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (r Range) Sample(rng *rand.Rand) float64 {
	return rng.Float64()*(r.Max-r.Min) + r.Min
}

func (r Range) validate() error {
	if r.Min > r.Max {
		return fmt.Errorf("invalid weight range [%v, %v)", r.Min, r.Max)
	}
	return nil
}

// ConnectionRange overrides the weight range of synapses entering Layer
// whose pre- and post-neuron names match. An empty name matches any neuron.
type ConnectionRange struct {
	Layer model.Layer `json:"layer" yaml:"layer"`
	Pre   string      `json:"pre,omitempty" yaml:"pre,omitempty"`
	Post  string      `json:"post,omitempty" yaml:"post,omitempty"`
	Range Range       `json:"range" yaml:"range"`
}

func (c ConnectionRange) matches(layer model.Layer, pre, post string) bool {
	if c.Layer != layer {
		return false
	}
	if c.Pre != "" && c.Pre != pre {
		return false
	}
	return c.Post == "" || c.Post == post
}

// InitPolicy declares the initial weight distribution per layer plus
// per-connection overrides. The first matching override wins.
type InitPolicy struct {
	Name      string            `json:"name" yaml:"name"`
	Hidden    Range             `json:"hidden" yaml:"hidden"`
	Output    Range             `json:"output" yaml:"output"`
	Overrides []ConnectionRange `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

func (p InitPolicy) RangeFor(layer model.Layer, pre, post string) Range {
	for _, override := range p.Overrides {
		if override.matches(layer, pre, post) {
			return override.Range
		}
	}
	if layer == model.LayerOutput {
		return p.Output
	}
	return p.Hidden
}

func (p InitPolicy) Validate() error {
	if err := p.Hidden.validate(); err != nil {
		return fmt.Errorf("policy %s hidden: %w", p.Name, err)
	}
	if err := p.Output.validate(); err != nil {
		return fmt.Errorf("policy %s output: %w", p.Name, err)
	}
	for i, override := range p.Overrides {
		if override.Layer != model.LayerHidden && override.Layer != model.LayerOutput {
			return fmt.Errorf("policy %s override %d: layer %s has no incoming synapses", p.Name, i, override.Layer)
		}
		if err := override.Range.validate(); err != nil {
			return fmt.Errorf("policy %s override %d: %w", p.Name, i, err)
		}
	}
	return nil
}

// XORPolicy is the calibration used for the 3-5-1 XOR experiment: the
// synapses from "hidden 5" start inhibitory.
func XORPolicy() InitPolicy {
	return InitPolicy{
		Name:   "xor",
		Hidden: Range{Min: -0.5, Max: 1.0},
		Output: Range{Min: 0, Max: 1.0},
		Overrides: []ConnectionRange{
			{Layer: model.LayerOutput, Pre: "hidden 5", Range: Range{Min: -0.5, Max: 0}},
		},
	}
}

func UniformPolicy() InitPolicy {
	return InitPolicy{
		Name:   "uniform",
		Hidden: Range{Min: -0.5, Max: 1.0},
		Output: Range{Min: 0, Max: 1.0},
	}
}
