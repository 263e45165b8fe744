package model

import (
	"encoding/json"
	"fmt"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Layer identifies one of the three feed-forward layers.
type Layer int

const (
	LayerInput Layer = iota
	LayerHidden
	LayerOutput
)

// LayerCount is the fixed depth of the network.
const LayerCount = 3

func (l Layer) String() string {
	switch l {
	case LayerInput:
		return "input"
	case LayerHidden:
		return "hidden"
	case LayerOutput:
		return "output"
	default:
		return fmt.Sprintf("layer(%d)", int(l))
	}
}

// Sample is one training or test case: an injection time per input neuron
// and the target first-spike time of the output layer.
type Sample struct {
	Input  []float64 `json:"input"`
	Target float64   `json:"target"`
}

// NewSample copies input so the sample cannot be mutated through the caller's slice.
func NewSample(input []float64, target float64) Sample {
	return Sample{Input: append([]float64(nil), input...), Target: target}
}

// Topology holds the neuron count of each layer.
type Topology struct {
	Input  int `json:"input"`
	Hidden int `json:"hidden"`
	Output int `json:"output"`
}

// Sizes returns the layer sizes in input, hidden, output order.
func (t Topology) Sizes() [LayerCount]int {
	return [LayerCount]int{t.Input, t.Hidden, t.Output}
}

// Parameters is the flattened (weight, delay) list of every synapse in
// layer, neuron, synapse traversal order. It serializes as a two-element
// array of arrays: [[weights...], [delays...]].
type Parameters struct {
	Weights []float64
	Delays  []float64
}

func (p Parameters) Len() int {
	return len(p.Weights)
}

func (p Parameters) Clone() Parameters {
	return Parameters{
		Weights: append([]float64(nil), p.Weights...),
		Delays:  append([]float64(nil), p.Delays...),
	}
}

func (p Parameters) MarshalJSON() ([]byte, error) {
	weights := p.Weights
	if weights == nil {
		weights = []float64{}
	}
	delays := p.Delays
	if delays == nil {
		delays = []float64{}
	}
	return json.Marshal([2][]float64{weights, delays})
}

func (p *Parameters) UnmarshalJSON(data []byte) error {
	var raw [][]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("parameters: expected [weights, delays], got %d arrays", len(raw))
	}
	if len(raw[0]) != len(raw[1]) {
		return fmt.Errorf("parameters: %d weights but %d delays", len(raw[0]), len(raw[1]))
	}
	p.Weights = raw[0]
	p.Delays = raw[1]
	return nil
}

// ParameterSet is a persisted snapshot of trained parameters together with
// the topology and neuron names they were trained on.
type ParameterSet struct {
	VersionedRecord
	ID         string     `json:"id"`
	Dataset    string     `json:"dataset"`
	Topology   Topology   `json:"topology"`
	Names      LayerNames `json:"names"`
	Policy     string     `json:"policy"`
	Error      float64    `json:"error"`
	Parameters Parameters `json:"parameters"`
}

// LayerNames lists neuron names per layer.
type LayerNames struct {
	Input  []string `json:"input"`
	Hidden []string `json:"hidden"`
	Output []string `json:"output"`
}

// RunRecord summarizes one training run made of several trials.
type RunRecord struct {
	VersionedRecord
	ID           string  `json:"id"`
	Dataset      string  `json:"dataset"`
	Seed         int64   `json:"seed"`
	Trials       int     `json:"trials"`
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	BestTrial    int     `json:"best_trial"`
	BestError    float64 `json:"best_error"`
	Converged    int     `json:"converged"`
	Accuracy     float64 `json:"accuracy"`
	CreatedAtUTC string  `json:"created_at_utc"`
}
