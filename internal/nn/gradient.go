package nn

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// MinDuDt floors du/dt before it is used as a divisor. Near-tangential
// threshold crossings have a vanishing slope and would blow up dt/dw.
const MinDuDt = 0.1

// DuDw is the sensitivity of neuron id's potential at its spike t to the
// weight of its incoming synapse syn, including the indirect path through
// the neuron's own earlier spikes.
func (net *Network) DuDw(id, syn int, t float64) float64 {
	return net.duDw(id, syn, t, net.slopeOf(id))
}

// DuDt is the slope of neuron id's potential at t, floored at MinDuDt.
func (net *Network) DuDt(id int, t float64) float64 {
	n := &net.neurons[id]
	duDt := 0.0
	for i := range n.Synapses {
		syn := &n.Synapses[i]
		for _, preSpike := range net.neurons[syn.Pre].Spikes {
			duDt += syn.Weight * EpsilonDerived(t-preSpike-syn.Delay)
		}
	}
	for _, refSpike := range n.Spikes {
		if refSpike < t {
			duDt += EtaDerived(t - refSpike)
		}
	}
	if duDt < MinDuDt {
		duDt = MinDuDt
	}
	return duDt
}

// DtDw differentiates the implicit spike time t of neuron id with respect to
// the weight of synapse syn: -(du/dw)/(du/dt).
func (net *Network) DtDw(id, syn int, t float64) float64 {
	return net.dtDw(id, syn, t, net.slopeOf(id))
}

// DeDt is the sensitivity of the error to spike t of neuron id.
func (net *Network) DeDt(id int, t float64) float64 {
	return newCascade(net).deDt(id, t)
}

// DposttDt is the sensitivity of spike tPost of neuron post to spike t of
// neuron id.
func (net *Network) DposttDt(id int, t float64, post int, tPost float64) float64 {
	return newCascade(net).dposttDt(id, t, post, tPost)
}

// DpostuDt is the sensitivity of neuron post's potential at tPost to spike t
// of neuron id.
func (net *Network) DpostuDt(id int, t float64, post int, tPost float64) float64 {
	return newCascade(net).dpostuDt(id, t, post, tPost)
}

// ComputeDeltaWeights accumulates -learningRate * dE/dt * dt/dw into the
// WeightDelta of every incoming synapse of neuron id, for every own spike.
func (net *Network) ComputeDeltaWeights(ctx context.Context, id int, learningRate float64) error {
	return net.computeDeltaWeights(ctx, newCascade(net), id, learningRate)
}

// Backward accumulates weight deltas for every neuron of the network. It
// does not touch weights; see ApplyDeltaWeights.
func (net *Network) Backward(ctx context.Context, learningRate float64) error {
	c := newCascade(net)
	for layer := range net.layers {
		for _, id := range net.layers[layer] {
			if err := net.computeDeltaWeights(ctx, c, id, learningRate); err != nil {
				return err
			}
		}
	}
	return nil
}

func (net *Network) computeDeltaWeights(ctx context.Context, c *cascade, id int, learningRate float64) error {
	n := &net.neurons[id]
	if len(n.Synapses) == 0 || len(n.Spikes) == 0 {
		return nil
	}

	// dE/dt and du/dt only depend on the spike, so they are resolved once
	// here. The per-synapse workers below read them without locking. duDw
	// only asks for the slope at the neuron's own spikes.
	spikes := n.Spikes
	errorSlopes := make([]float64, len(spikes))
	potentialSlopes := make(map[float64]float64, len(spikes))
	for k, spike := range spikes {
		errorSlopes[k] = c.deDt(id, spike)
		potentialSlopes[spike] = c.duDt(id, spike)
	}
	slope := func(t float64) float64 {
		return potentialSlopes[t]
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for s := range n.Synapses {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			delta := 0.0
			for k, spike := range spikes {
				delta -= learningRate * errorSlopes[k] * net.dtDw(id, s, spike, slope)
			}
			n.Synapses[s].WeightDelta += delta
			return nil
		})
	}
	return g.Wait()
}

func (net *Network) slopeOf(id int) func(float64) float64 {
	return func(t float64) float64 {
		return net.DuDt(id, t)
	}
}

func (net *Network) dtDw(id, syn int, t float64, slope func(float64) float64) float64 {
	return -net.duDw(id, syn, t, slope) / slope(t)
}

func (net *Network) duDw(id, syn int, t float64, slope func(float64) float64) float64 {
	n := &net.neurons[id]
	s := &n.Synapses[syn]
	duDw := 0.0
	for _, preSpike := range net.neurons[s.Pre].Spikes {
		duDw += Epsilon(t - preSpike - s.Delay)
	}
	for _, refSpike := range n.Spikes {
		if refSpike < t {
			duDw += -EtaDerived(t-refSpike) * net.dtDw(id, syn, refSpike, slope)
		}
	}
	return duDw
}

type spikeKey struct {
	neuron int
	t      float64
}

// cascade memoizes dE/dt and du/dt per (neuron, spike) for one backward
// pass. Spike histories and weights must not change while it is in use.
type cascade struct {
	net  *Network
	errs map[spikeKey]float64
	dus  map[spikeKey]float64
}

func newCascade(net *Network) *cascade {
	return &cascade{
		net:  net,
		errs: make(map[spikeKey]float64),
		dus:  make(map[spikeKey]float64),
	}
}

func (c *cascade) duDt(id int, t float64) float64 {
	key := spikeKey{neuron: id, t: t}
	if v, ok := c.dus[key]; ok {
		return v
	}
	v := c.net.DuDt(id, t)
	c.dus[key] = v
	return v
}

func (c *cascade) deDt(id int, t float64) float64 {
	key := spikeKey{neuron: id, t: t}
	if v, ok := c.errs[key]; ok {
		return v
	}

	n := &c.net.neurons[id]
	if n.Clamped && len(n.Spikes) > 0 && t == n.Spikes[0] {
		v := t - n.Target
		c.errs[key] = v
		return v
	}

	deDt := 0.0
	for _, post := range n.Post {
		for _, postSpike := range c.net.neurons[post].Spikes {
			if postSpike > t {
				deDt += c.deDt(post, postSpike) * c.dposttDt(id, t, post, postSpike)
			}
		}
	}
	c.errs[key] = deDt
	return deDt
}

func (c *cascade) dposttDt(id int, t float64, post int, tPost float64) float64 {
	return -c.dpostuDt(id, t, post, tPost) / c.duDt(post, tPost)
}

func (c *cascade) dpostuDt(id int, t float64, post int, tPost float64) float64 {
	postNeuron := &c.net.neurons[post]
	dpostuDt := 0.0
	for i := range postNeuron.Synapses {
		syn := &postNeuron.Synapses[i]
		if syn.Pre == id {
			dpostuDt -= syn.Weight * EpsilonDerived(tPost-t-syn.Delay)
		}
	}
	for _, refPostSpike := range postNeuron.Spikes {
		if refPostSpike < tPost {
			dpostuDt -= EtaDerived(tPost-refPostSpike) * c.dposttDt(id, t, post, refPostSpike)
		}
	}
	return dpostuDt
}
