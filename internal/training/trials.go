package training

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spikeprop/internal/model"
	"spikeprop/internal/nn"
)

var ErrRestartsExhausted = errors.New("trial restarts exhausted")

type TrialsConfig struct {
	Trials      int
	Seed        int64
	Workers     int
	MaxRestarts int
}

// NetworkFactory builds the network for one trial attempt from its own
// random source.
type NetworkFactory func(rng *rand.Rand) (*nn.Network, error)

type TrialResult struct {
	Trial    int   `json:"trial"`
	Seed     int64 `json:"seed"`
	Restarts int   `json:"restarts"`
	Result

	Network *nn.Network `json:"-"`
}

type TrialsResult struct {
	Trials []TrialResult
	// Best indexes the trial with the lowest final error.
	Best int
}

func (r TrialsResult) BestTrial() TrialResult {
	return r.Trials[r.Best]
}

// TrialSeed is the seed of attempt restart of trial. Attempts never share a
// seed within one run.
func TrialSeed(cfg TrialsConfig, trial, restart int) int64 {
	return cfg.Seed + int64(trial)*int64(cfg.MaxRestarts+1) + int64(restart)
}

// RunTrials trains cfg.Trials independent networks, at most cfg.Workers at a
// time. A trial whose output neuron stops firing is restarted with a fresh
// network up to cfg.MaxRestarts times.
func (t *Trainer) RunTrials(ctx context.Context, cfg TrialsConfig, factory NetworkFactory, samples []model.Sample) (TrialsResult, error) {
	if cfg.Trials <= 0 {
		return TrialsResult{}, fmt.Errorf("trials must be > 0, got %d", cfg.Trials)
	}
	if cfg.MaxRestarts < 0 {
		return TrialsResult{}, fmt.Errorf("max restarts must be >= 0, got %d", cfg.MaxRestarts)
	}
	if factory == nil {
		return TrialsResult{}, errors.New("network factory is required")
	}

	results := make([]TrialResult, cfg.Trials)
	g, ctx := errgroup.WithContext(ctx)
	if cfg.Workers > 0 {
		g.SetLimit(cfg.Workers)
	}
	for trial := 0; trial < cfg.Trials; trial++ {
		g.Go(func() error {
			result, err := t.runTrial(ctx, cfg, trial, factory, samples)
			if err != nil {
				return err
			}
			results[trial] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TrialsResult{}, err
	}

	best := 0
	for i := range results {
		if results[i].FinalError < results[best].FinalError {
			best = i
		}
	}
	return TrialsResult{Trials: results, Best: best}, nil
}

func (t *Trainer) runTrial(ctx context.Context, cfg TrialsConfig, trial int, factory NetworkFactory, samples []model.Sample) (TrialResult, error) {
	for restart := 0; restart <= cfg.MaxRestarts; restart++ {
		seed := TrialSeed(cfg, trial, restart)
		net, err := factory(rand.New(rand.NewSource(seed)))
		if err != nil {
			return TrialResult{}, fmt.Errorf("trial %d: build network: %w", trial, err)
		}

		result, err := t.Train(ctx, trial, net, samples)
		if errors.Is(err, ErrNoOutputSpike) {
			t.metrics.observeRestart()
			t.logger.Warn("no output spike, restarting trial",
				zap.Int("trial", trial),
				zap.Int("restart", restart+1),
				zap.Int64("seed", seed),
				zap.Error(err),
			)
			continue
		}
		if err != nil {
			return TrialResult{}, fmt.Errorf("trial %d: %w", trial, err)
		}

		t.logger.Info("trial finished",
			zap.Int("trial", trial),
			zap.Int64("seed", seed),
			zap.Int("restarts", restart),
			zap.Int("epochs", result.Epochs),
			zap.Bool("converged", result.Converged),
			zap.Float64("sse", result.FinalError),
		)
		return TrialResult{
			Trial:    trial,
			Seed:     seed,
			Restarts: restart,
			Result:   result,
			Network:  net,
		}, nil
	}
	return TrialResult{}, fmt.Errorf("%w: trial %d after %d restarts", ErrRestartsExhausted, trial, cfg.MaxRestarts)
}
