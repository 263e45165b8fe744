package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"spikeprop/internal/model"
)

const (
	// DelayLines is the number of parallel synapses per connected neuron pair.
	DelayLines = 16
	// NoSpike is returned by Predict when the output neuron never fired.
	NoSpike = -1.0
)

var (
	ErrSampleSize       = errors.New("sample input size does not match input layer")
	ErrTopologyMismatch = errors.New("parameters do not match network topology")
	ErrTimeStep         = errors.New("time step must be finite and > 0")
	ErrMaxTime          = errors.New("max time must be finite")
)

// Network is a three-layer spiking network. Neurons live in one flat table;
// synapses and post-neuron lists refer to them by index.
type Network struct {
	neurons []Neuron
	layers  [model.LayerCount][]int

	// CurrentError is the last epoch error reported by the training loop.
	CurrentError float64
}

func New() *Network {
	return &Network{}
}

// Create builds a fully connected input-hidden-output network with
// DelayLines synapses per neuron pair and weights drawn from policy.
func Create(input, hidden, output []string, policy InitPolicy, rng *rand.Rand) (*Network, error) {
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	net := New()
	for _, name := range input {
		net.AddNeuron(model.LayerInput, name)
	}
	for _, name := range hidden {
		net.AddNeuron(model.LayerHidden, name)
	}
	for _, name := range output {
		net.AddNeuron(model.LayerOutput, name)
	}

	net.connectLayers(model.LayerInput, model.LayerHidden)
	net.connectLayers(model.LayerHidden, model.LayerOutput)

	net.initializeWeights(policy, rng)
	return net, nil
}

func (net *Network) AddNeuron(layer model.Layer, name string) int {
	id := len(net.neurons)
	net.neurons = append(net.neurons, Neuron{Name: name, Layer: layer})
	net.layers[layer] = append(net.layers[layer], id)
	return id
}

// Connect adds a single synapse from pre to post.
func (net *Network) Connect(pre, post int, weight, delay float64) {
	postNeuron := &net.neurons[post]
	postNeuron.Synapses = append(postNeuron.Synapses, Synapse{Pre: pre, Weight: weight, Delay: delay})

	preNeuron := &net.neurons[pre]
	for _, existing := range preNeuron.Post {
		if existing == post {
			return
		}
	}
	preNeuron.Post = append(preNeuron.Post, post)
}

// ConnectDelayLines adds lines synapses from pre to post with zero weight and
// delays lines+1 down to 2.
func (net *Network) ConnectDelayLines(pre, post, lines int) {
	for i := lines; i > 0; i-- {
		net.Connect(pre, post, 0, float64(i)+1)
	}
}

func (net *Network) connectLayers(preLayer, postLayer model.Layer) {
	for _, pre := range net.layers[preLayer] {
		for _, post := range net.layers[postLayer] {
			net.ConnectDelayLines(pre, post, DelayLines)
		}
	}
}

func (net *Network) initializeWeights(policy InitPolicy, rng *rand.Rand) {
	for _, layer := range []model.Layer{model.LayerHidden, model.LayerOutput} {
		for _, id := range net.layers[layer] {
			post := &net.neurons[id]
			for i := range post.Synapses {
				syn := &post.Synapses[i]
				r := policy.RangeFor(layer, net.neurons[syn.Pre].Name, post.Name)
				syn.Weight = r.Sample(rng)
			}
		}
	}
}

// Clear empties every spike history. It must run before each sample.
func (net *Network) Clear() {
	for i := range net.neurons {
		net.neurons[i].Spikes = net.neurons[i].Spikes[:0]
	}
}

// LoadSample injects the sample's input times as spikes on the input layer
// and clamps every output neuron to the sample target.
func (net *Network) LoadSample(sample model.Sample) error {
	inputs := net.layers[model.LayerInput]
	if len(sample.Input) != len(inputs) {
		return fmt.Errorf("%w: got %d, expected %d", ErrSampleSize, len(sample.Input), len(inputs))
	}
	for i, id := range inputs {
		net.neurons[id].Fire(sample.Input[i])
	}
	for _, id := range net.layers[model.LayerOutput] {
		net.neurons[id].Target = sample.Target
		net.neurons[id].Clamped = true
	}
	return nil
}

// Forward advances time from 0 in increments of step until tMax is reached
// or every output neuron has fired. Each tick evaluates all neurons layer by
// layer, so a hidden spike reaches the output layer one tick later at the
// earliest.
func (net *Network) Forward(tMax, step float64) error {
	if err := ValidateTiming(tMax, step); err != nil {
		return err
	}
	for tick := 0; ; tick++ {
		t := float64(tick) * step
		if t >= tMax || net.outputsFired() {
			return nil
		}
		for layer := range net.layers {
			for _, id := range net.layers[layer] {
				net.ForwardNeuron(id, t)
			}
		}
	}
}

// ValidateTiming rejects simulation bounds for which Forward would not stop
// after a finite number of ticks.
func ValidateTiming(tMax, step float64) error {
	if !(step > 0) || math.IsInf(step, 1) {
		return fmt.Errorf("%w: %v", ErrTimeStep, step)
	}
	if math.IsNaN(tMax) || math.IsInf(tMax, 1) {
		return fmt.Errorf("%w: %v", ErrMaxTime, tMax)
	}
	return nil
}

func (net *Network) outputsFired() bool {
	for _, id := range net.layers[model.LayerOutput] {
		if len(net.neurons[id].Spikes) == 0 {
			return false
		}
	}
	return true
}

// Predict runs one sample and returns the first spike time of the first
// output neuron. ok is false, with NoSpike as value, when it never fired.
func (net *Network) Predict(sample model.Sample, tMax, step float64) (float64, bool, error) {
	net.Clear()
	if err := net.LoadSample(sample); err != nil {
		return NoSpike, false, err
	}
	if err := net.Forward(tMax, step); err != nil {
		return NoSpike, false, err
	}
	spike, ok := net.OutputSpike()
	return spike, ok, nil
}

// OutputSpike returns the first spike of the first output neuron.
func (net *Network) OutputSpike() (float64, bool) {
	outputs := net.layers[model.LayerOutput]
	if len(outputs) == 0 {
		return NoSpike, false
	}
	return net.neurons[outputs[0]].FirstSpike()
}

func (net *Network) Neuron(id int) *Neuron {
	return &net.neurons[id]
}

func (net *Network) NeuronCount() int {
	return len(net.neurons)
}

// Layer returns the neuron indices of layer in creation order.
func (net *Network) Layer(layer model.Layer) []int {
	return append([]int(nil), net.layers[layer]...)
}

// FindNeuron returns the index of the first neuron called name.
func (net *Network) FindNeuron(name string) (int, bool) {
	for i := range net.neurons {
		if net.neurons[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

func (net *Network) Topology() model.Topology {
	return model.Topology{
		Input:  len(net.layers[model.LayerInput]),
		Hidden: len(net.layers[model.LayerHidden]),
		Output: len(net.layers[model.LayerOutput]),
	}
}

func (net *Network) Names() model.LayerNames {
	names := func(layer model.Layer) []string {
		out := make([]string, 0, len(net.layers[layer]))
		for _, id := range net.layers[layer] {
			out = append(out, net.neurons[id].Name)
		}
		return out
	}
	return model.LayerNames{
		Input:  names(model.LayerInput),
		Hidden: names(model.LayerHidden),
		Output: names(model.LayerOutput),
	}
}
