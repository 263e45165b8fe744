// Package gradcheck compares the analytic spike-time gradients of a network
// with central finite differences of its exact threshold crossings.
package gradcheck

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"

	"spikeprop/internal/model"
	"spikeprop/internal/nn"
)

var ErrNoSpike = errors.New("no neuron fired")

const bisectIterations = 80

type Options struct {
	MaxTime  float64
	TimeStep float64
	// Perturbation is the finite difference step applied to each weight.
	Perturbation float64
}

func DefaultOptions() Options {
	return Options{
		MaxTime:      40,
		TimeStep:     0.1,
		Perturbation: 1e-5,
	}
}

// Check is the gradient of one neuron's first spike with respect to one of
// its incoming weights.
type Check struct {
	Neuron   string  `json:"neuron"`
	Pre      string  `json:"pre"`
	Synapse  int     `json:"synapse"`
	Delay    float64 `json:"delay"`
	Spike    float64 `json:"spike"`
	Analytic float64 `json:"analytic"`
	Numeric  float64 `json:"numeric"`
	AbsError float64 `json:"abs_error"`
	// Floored is set when du/dt at the crossing is below nn.MinDuDt. The
	// analytic value then uses the floor and is not expected to match.
	Floored bool `json:"floored"`
}

type Report struct {
	Checks []Check `json:"checks"`
	// MaxAbsError is taken over the checks that are not floored.
	MaxAbsError float64 `json:"max_abs_error"`
	Floored     int     `json:"floored"`
}

// Run forwards sample through net and checks dt/dw for every active synapse
// of every hidden and output neuron that fired. Pre-synaptic spike times are
// held at their forward pass values, so only the neuron's own crossing moves
// with its weights. net is mutated while checking and restored before Run
// returns; it must not be used concurrently.
func Run(net *nn.Network, sample model.Sample, opts Options) (Report, error) {
	if err := nn.ValidateTiming(opts.MaxTime, opts.TimeStep); err != nil {
		return Report{}, err
	}
	if opts.Perturbation <= 0 {
		return Report{}, fmt.Errorf("perturbation must be > 0, got %v", opts.Perturbation)
	}
	if _, _, err := net.Predict(sample, opts.MaxTime, opts.TimeStep); err != nil {
		return Report{}, err
	}

	var report Report
	for _, layer := range []model.Layer{model.LayerHidden, model.LayerOutput} {
		for _, id := range net.Layer(layer) {
			checks, err := checkNeuron(net, id, opts)
			if err != nil {
				return Report{}, err
			}
			report.Checks = append(report.Checks, checks...)
		}
	}
	if len(report.Checks) == 0 {
		return Report{}, ErrNoSpike
	}
	for _, c := range report.Checks {
		if c.Floored {
			report.Floored++
			continue
		}
		report.MaxAbsError = math.Max(report.MaxAbsError, c.AbsError)
	}
	return report, nil
}

func checkNeuron(net *nn.Network, id int, opts Options) ([]Check, error) {
	n := net.Neuron(id)
	coarse, ok := n.FirstSpike()
	if !ok {
		return nil, nil
	}
	spikes := n.Spikes
	n.Spikes = nil
	defer func() { n.Spikes = spikes }()

	exact, ok := crossing(net, id, coarse, opts)
	if !ok {
		return nil, fmt.Errorf("neuron %q: lost threshold crossing near %v", n.Name, coarse)
	}

	var checks []Check
	for i := range n.Synapses {
		syn := &n.Synapses[i]
		if !active(net, syn, exact) {
			continue
		}

		weight := syn.Weight
		lost := false
		spikeAt := func(w float64) float64 {
			syn.Weight = w
			t, ok := crossing(net, id, exact, opts)
			if !ok {
				lost = true
				return math.NaN()
			}
			return t
		}
		numeric := fd.Derivative(spikeAt, weight, &fd.Settings{
			Formula: fd.Central,
			Step:    opts.Perturbation,
		})
		syn.Weight = weight
		if lost {
			return nil, fmt.Errorf("neuron %q synapse %d: crossing vanished under perturbation", n.Name, i)
		}

		n.Spikes = []float64{exact}
		analytic := net.DtDw(id, i, exact)
		floored := net.DuDt(id, exact) <= nn.MinDuDt
		n.Spikes = nil

		checks = append(checks, Check{
			Neuron:   n.Name,
			Pre:      net.Neuron(syn.Pre).Name,
			Synapse:  i,
			Delay:    syn.Delay,
			Spike:    exact,
			Analytic: analytic,
			Numeric:  numeric,
			AbsError: math.Abs(analytic - numeric),
			Floored:  floored,
		})
	}
	return checks, nil
}

// active reports whether any pre-synaptic spike has reached the neuron
// through syn by t.
func active(net *nn.Network, syn *nn.Synapse, t float64) bool {
	for _, preSpike := range net.Neuron(syn.Pre).Spikes {
		if t-preSpike-syn.Delay > 0 {
			return true
		}
	}
	return false
}

// crossing locates the upward threshold crossing of neuron id closest to
// guess, widening the bracket one time step at a time and then bisecting.
func crossing(net *nn.Network, id int, guess float64, opts Options) (float64, bool) {
	above := func(t float64) bool {
		return net.Potential(id, t) > nn.Threshold
	}
	lo := guess - opts.TimeStep
	for lo > 0 && above(lo) {
		lo -= opts.TimeStep
	}
	if lo < 0 {
		lo = 0
	}
	hi := guess
	for !above(hi) {
		hi += opts.TimeStep
		if hi > opts.MaxTime {
			return 0, false
		}
	}
	for i := 0; i < bisectIterations; i++ {
		mid := 0.5 * (lo + hi)
		if above(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, true
}
