package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"spikeprop/internal/model"
	"spikeprop/internal/nn"
)

var ErrNoOutputSpike = errors.New("output neuron did not spike")

// Config holds the per-trial training parameters.
type Config struct {
	Epochs       int
	TargetError  float64
	LearningRate float64
	MaxTime      float64
	TimeStep     float64
}

func DefaultConfig() Config {
	return Config{
		Epochs:       1000,
		TargetError:  1.0,
		LearningRate: 1e-2,
		MaxTime:      40,
		TimeStep:     0.1,
	}
}

func (c Config) validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0, got %d", c.Epochs)
	}
	if !(c.MaxTime > 0) {
		return fmt.Errorf("%w: must be > 0, got %v", nn.ErrMaxTime, c.MaxTime)
	}
	return nn.ValidateTiming(c.MaxTime, c.TimeStep)
}

// ImprovedFunc is called after every epoch whose error is lower than the
// best error seen so far in the trial. It may be called concurrently from
// different trials.
type ImprovedFunc func(trial, epoch int, sse float64, params model.Parameters)

type Trainer struct {
	cfg        Config
	logger     *zap.Logger
	metrics    *Collector
	onImproved ImprovedFunc
}

type Option func(*Trainer)

func WithLogger(logger *zap.Logger) Option {
	return func(t *Trainer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithMetrics(metrics *Collector) Option {
	return func(t *Trainer) {
		t.metrics = metrics
	}
}

func WithOnImproved(fn ImprovedFunc) Option {
	return func(t *Trainer) {
		t.onImproved = fn
	}
}

func NewTrainer(cfg Config, opts ...Option) *Trainer {
	t := &Trainer{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Trainer) Config() Config {
	return t.cfg
}

// Result describes one training trial.
type Result struct {
	Epochs       int       `json:"epochs"`
	Converged    bool      `json:"converged"`
	FinalError   float64   `json:"final_error"`
	ErrorHistory []float64 `json:"error_history"`
}

// Train runs epochs of per-sample forward, backward and weight update until
// the epoch error drops below the target or the epoch budget is spent. The
// epoch error is the sum over samples and outputs of 0.5*(t-target)^2.
func (t *Trainer) Train(ctx context.Context, trial int, net *nn.Network, samples []model.Sample) (Result, error) {
	if err := t.cfg.validate(); err != nil {
		return Result{}, err
	}
	if len(samples) == 0 {
		return Result{}, errors.New("training requires at least one sample")
	}

	result := Result{
		FinalError:   math.Inf(1),
		ErrorHistory: make([]float64, 0, t.cfg.Epochs),
	}
	best := math.Inf(1)
	outputs := net.Layer(model.LayerOutput)

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		start := time.Now()

		sse := 0.0
		for i, sample := range samples {
			net.Clear()
			if err := net.LoadSample(sample); err != nil {
				return result, err
			}
			if err := net.Forward(t.cfg.MaxTime, t.cfg.TimeStep); err != nil {
				return result, err
			}
			for _, id := range outputs {
				spike, ok := net.Neuron(id).FirstSpike()
				if !ok {
					return result, fmt.Errorf("%w: trial %d epoch %d sample %d", ErrNoOutputSpike, trial, epoch, i)
				}
				sse += 0.5 * (spike - sample.Target) * (spike - sample.Target)
			}
			if err := net.Backward(ctx, t.cfg.LearningRate); err != nil {
				return result, err
			}
			net.ApplyDeltaWeights()
		}

		elapsed := time.Since(start)
		result.Epochs = epoch + 1
		result.FinalError = sse
		result.ErrorHistory = append(result.ErrorHistory, sse)
		net.CurrentError = sse
		t.metrics.observeEpoch(trial, sse, elapsed)
		t.logger.Debug("epoch completed",
			zap.Int("trial", trial),
			zap.Int("epoch", epoch),
			zap.Float64("sse", sse),
			zap.Duration("elapsed", elapsed),
		)

		if sse < best {
			best = sse
			if t.onImproved != nil {
				t.onImproved(trial, epoch, sse, net.Parameters())
			}
		}
		if sse < t.cfg.TargetError {
			result.Converged = true
			t.metrics.observeConverged()
			break
		}
	}
	return result, nil
}
