package dataset

import (
	"fmt"
	"math"
	"strings"

	"spikeprop/internal/model"
)

// Spike-time encoding of the XOR problem: a logical 1 on an input is a spike
// at SpikeTimeInput, and the output answers early for true, late for false.
const (
	SpikeTimeInput = 6.0
	SpikeTimeTrue  = 10.0
	SpikeTimeFalse = 16.0
)

const XORName = "xor"

type xorCase struct {
	left, right bool
}

func (c xorCase) sample() model.Sample {
	target := SpikeTimeFalse
	if c.left != c.right {
		target = SpikeTimeTrue
	}
	return model.NewSample([]float64{encode(c.left), encode(c.right), 0}, target)
}

func encode(bit bool) float64 {
	if bit {
		return SpikeTimeInput
	}
	return 0
}

// XOR returns the four-sample XOR dataset for a 3-hidden-1 network. The
// third input is a bias neuron that always fires at 0.
func XOR(hidden int) (Dataset, error) {
	return XORMode(hidden, ModeTrain)
}

// XORMode returns the XOR samples in the order used by mode. Validation and
// test orders repeat and shuffle the four base cases.
func XORMode(hidden int, mode string) (Dataset, error) {
	if hidden < 1 {
		return Dataset{}, fmt.Errorf("xor needs at least one hidden neuron, got %d", hidden)
	}
	base := []xorCase{
		{left: false, right: false},
		{left: false, right: true},
		{left: true, right: false},
		{left: true, right: true},
	}

	var cases []xorCase
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case "", ModeTrain:
		cases = base
	case ModeValidation:
		cases = []xorCase{base[1], base[2], base[0], base[3], base[1], base[2]}
	case ModeTest:
		cases = []xorCase{base[3], base[2], base[1], base[0], base[3], base[0], base[2], base[1]}
	default:
		return Dataset{}, fmt.Errorf("%w: xor mode %s", ErrUnknownMode, mode)
	}

	samples := make([]model.Sample, 0, len(cases))
	for _, c := range cases {
		samples = append(samples, c.sample())
	}
	return Dataset{
		Name: XORName,
		Names: model.LayerNames{
			Input:  []string{"input 1", "input 2", "bias"},
			Hidden: HiddenNames(hidden),
			Output: []string{"output"},
		},
		Samples:  samples,
		Positive: SpikeTimeTrue,
		Negative: SpikeTimeFalse,
	}, nil
}

// HiddenNames returns "hidden 1" .. "hidden n".
func HiddenNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("hidden %d", i+1)
	}
	return names
}

// Classify maps a spike time onto the nearer of the two class times. A tie
// or a missing spike reads as positive.
func (d Dataset) Classify(spike float64) bool {
	return math.Abs(spike-d.Positive) <= math.Abs(spike-d.Negative)
}
