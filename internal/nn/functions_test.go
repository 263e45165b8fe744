package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/diff/fd"
)

func TestKernelsAreCausal(t *testing.T) {
	kernels := map[string]func(float64) float64{
		"epsilon":         Epsilon,
		"eta":             Eta,
		"epsilon_derived": EpsilonDerived,
		"eta_derived":     EtaDerived,
	}
	for name, kernel := range kernels {
		t.Run(name, func(t *testing.T) {
			for _, s := range []float64{-40, -1, -1e-9, 0} {
				assert.Zero(t, kernel(s), "s=%v", s)
			}
		})
	}
}

func TestKernelClosedForms(t *testing.T) {
	s := 2.0
	assert.InDelta(t, math.Exp(-0.5)-math.Exp(-1), Epsilon(s), 1e-12)
	assert.InDelta(t, -math.Exp(-0.5), Eta(s), 1e-12)
	assert.InDelta(t, -math.Exp(-0.5)/4+math.Exp(-1)/2, EpsilonDerived(s), 1e-12)
	assert.InDelta(t, math.Exp(-0.5)/4, EtaDerived(s), 1e-12)
}

func TestEpsilonPeak(t *testing.T) {
	peak := 4 * math.Ln2
	assert.InDelta(t, 0.25, Epsilon(peak), 1e-12)
	assert.InDelta(t, 0, EpsilonDerived(peak), 1e-12)
	assert.Greater(t, EpsilonDerived(peak-0.5), 0.0)
	assert.Less(t, EpsilonDerived(peak+0.5), 0.0)
}

func TestKernelDerivativesMatchFiniteDifferences(t *testing.T) {
	settings := &fd.Settings{Formula: fd.Central, Step: 1e-6}
	for _, s := range []float64{0.3, 1, 2.5, 4, 9, 20} {
		assert.InDelta(t, fd.Derivative(Epsilon, s, settings), EpsilonDerived(s), 1e-7, "epsilon s=%v", s)
		assert.InDelta(t, fd.Derivative(Eta, s, settings), EtaDerived(s), 1e-7, "eta s=%v", s)
	}
}
