package nn

import "math"

// EpsilonDerived is dEpsilon/ds.
func EpsilonDerived(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return -math.Exp(-s/TauM)/TauM + math.Exp(-s/TauS)/TauS
}

// EtaDerived is dEta/ds. It is positive: the refractory dip recovers
// towards zero, so a recent own spike raises du/dt.
func EtaDerived(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return math.Exp(-s/TauR) / TauR
}
