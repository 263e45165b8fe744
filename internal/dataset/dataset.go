package dataset

import (
	"errors"
	"fmt"
	"sort"

	"spikeprop/internal/model"
)

const (
	ModeTrain      = "gt"
	ModeValidation = "validation"
	ModeTest       = "test"
)

var (
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrUnknownMode    = errors.New("unsupported dataset mode")
)

// Dataset is a named list of spike-time samples together with the neuron
// names of the network that learns it and the two class spike times.
type Dataset struct {
	Name     string
	Names    model.LayerNames
	Samples  []model.Sample
	Positive float64
	Negative float64
}

// Label returns the class encoded by the sample's target.
func (d Dataset) Label(sample model.Sample) bool {
	return d.Classify(sample.Target)
}

// Topology is the layer sizes a network needs to learn d.
func (d Dataset) Topology() model.Topology {
	return model.Topology{
		Input:  len(d.Names.Input),
		Hidden: len(d.Names.Hidden),
		Output: len(d.Names.Output),
	}
}

type builder func(hidden int, mode string) (Dataset, error)

var builders = map[string]builder{
	XORName: XORMode,
}

// Get builds dataset name for a network with hidden hidden neurons.
func Get(name string, hidden int, mode string) (Dataset, error) {
	build, ok := builders[name]
	if !ok {
		return Dataset{}, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}
	return build(hidden, mode)
}

func List() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
