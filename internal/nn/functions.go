package nn

import "math"

const (
	// TauM is the membrane time constant of the post-synaptic potential.
	TauM = 4.0
	// TauS is the synaptic time constant of the post-synaptic potential.
	TauS = 2.0
	// TauR is the refractory time constant.
	TauR = 4.0

	// Threshold is the fixed firing threshold of every neuron.
	Threshold = 1.0
)

// Epsilon is the post-synaptic potential kernel. s is the time elapsed since
// a pre-synaptic spike arrived, synaptic delay included.
func Epsilon(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return math.Exp(-s/TauM) - math.Exp(-s/TauS)
}

// Eta is the refractory kernel applied after each of the neuron's own spikes.
func Eta(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return -math.Exp(-s / TauR)
}
