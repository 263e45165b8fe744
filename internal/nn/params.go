package nn

import (
	"fmt"

	"spikeprop/internal/model"
)

// SynapseCount is the number of synapses across all layers.
func (net *Network) SynapseCount() int {
	count := 0
	for i := range net.neurons {
		count += len(net.neurons[i].Synapses)
	}
	return count
}

// Parameters flattens every synapse's weight and delay in layer, neuron,
// synapse order.
func (net *Network) Parameters() model.Parameters {
	count := net.SynapseCount()
	params := model.Parameters{
		Weights: make([]float64, 0, count),
		Delays:  make([]float64, 0, count),
	}
	net.eachSynapse(func(syn *Synapse) {
		params.Weights = append(params.Weights, syn.Weight)
		params.Delays = append(params.Delays, syn.Delay)
	})
	return params
}

// SetParameters restores weights and delays written by Parameters. The
// network must have the topology the parameters were taken from.
func (net *Network) SetParameters(params model.Parameters) error {
	if len(params.Weights) != len(params.Delays) {
		return fmt.Errorf("%w: %d weights, %d delays", ErrTopologyMismatch, len(params.Weights), len(params.Delays))
	}
	if count := net.SynapseCount(); count != len(params.Weights) {
		return fmt.Errorf("%w: network has %d synapses, got %d", ErrTopologyMismatch, count, len(params.Weights))
	}
	i := 0
	net.eachSynapse(func(syn *Synapse) {
		syn.Weight = params.Weights[i]
		syn.Delay = params.Delays[i]
		i++
	})
	return nil
}

func (net *Network) eachSynapse(fn func(syn *Synapse)) {
	for layer := range net.layers {
		for _, id := range net.layers[layer] {
			synapses := net.neurons[id].Synapses
			for s := range synapses {
				fn(&synapses[s])
			}
		}
	}
}
