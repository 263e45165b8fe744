package nn

// ApplyDeltaWeights adds every accumulated WeightDelta to its weight and
// zeroes the accumulator. The training loop calls it exactly once per sample,
// after Backward.
func (net *Network) ApplyDeltaWeights() {
	for i := range net.neurons {
		synapses := net.neurons[i].Synapses
		for s := range synapses {
			synapses[s].Weight += synapses[s].WeightDelta
			synapses[s].WeightDelta = 0
		}
	}
}

// ResetDeltaWeights discards accumulated deltas without applying them.
func (net *Network) ResetDeltaWeights() {
	for i := range net.neurons {
		synapses := net.neurons[i].Synapses
		for s := range synapses {
			synapses[s].WeightDelta = 0
		}
	}
}

// PendingDeltas reports whether any synapse holds a non-zero delta.
func (net *Network) PendingDeltas() bool {
	for i := range net.neurons {
		for _, syn := range net.neurons[i].Synapses {
			if syn.WeightDelta != 0 {
				return true
			}
		}
	}
	return false
}
