package nn

import "spikeprop/internal/model"

// Neuron owns its incoming synapses. Post lists the indices of the neurons
// it projects to and is only used by the backward pass.
type Neuron struct {
	Name     string
	Layer    model.Layer
	Synapses []Synapse
	Post     []int
	// Spikes is the neuron's firing history for the current sample,
	// non-decreasing within one forward pass.
	Spikes []float64
	// Target is the desired first-spike time; only meaningful when Clamped.
	Target  float64
	Clamped bool
}

func (n *Neuron) Fire(t float64) {
	n.Spikes = append(n.Spikes, t)
}

// FirstSpike returns the earliest spike of the current sample.
func (n *Neuron) FirstSpike() (float64, bool) {
	if len(n.Spikes) == 0 {
		return NoSpike, false
	}
	return n.Spikes[0], true
}

// Potential evaluates u(t) of neuron id: weighted PSPs of every pre-synaptic
// spike on every delay line plus the refractory contribution of its own spikes.
func (net *Network) Potential(id int, t float64) float64 {
	n := &net.neurons[id]
	u := 0.0
	for i := range n.Synapses {
		syn := &n.Synapses[i]
		for _, preSpike := range net.neurons[syn.Pre].Spikes {
			u += syn.Weight * Epsilon(t-preSpike-syn.Delay)
		}
	}
	for _, ownSpike := range n.Spikes {
		u += Eta(t - ownSpike)
	}
	return u
}

// ForwardNeuron fires neuron id at t when its potential exceeds Threshold.
func (net *Network) ForwardNeuron(id int, t float64) bool {
	if net.Potential(id, t) > Threshold {
		net.neurons[id].Fire(t)
		return true
	}
	return false
}
