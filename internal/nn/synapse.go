package nn

// Synapse is one delay line from a pre-synaptic neuron into the neuron that
// holds it. Pre indexes the network's neuron table.
type Synapse struct {
	Pre         int
	Weight      float64
	Delay       float64
	WeightDelta float64
}
