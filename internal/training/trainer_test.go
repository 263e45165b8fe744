package training

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spikeprop/internal/dataset"
	"spikeprop/internal/model"
	"spikeprop/internal/nn"
)

// chainNetwork is a single input wired to a single output by one synapse.
func chainNetwork(weight float64) *nn.Network {
	net := nn.New()
	in := net.AddNeuron(model.LayerInput, "in")
	out := net.AddNeuron(model.LayerOutput, "out")
	net.Connect(in, out, weight, 1)
	return net
}

func chainConfig(epochs int, lr float64) Config {
	cfg := DefaultConfig()
	cfg.Epochs = epochs
	cfg.LearningRate = lr
	cfg.MaxTime = 20
	return cfg
}

func TestTrainConvergesWhenTargetAlreadyMet(t *testing.T) {
	metrics := NewCollector("test")
	trainer := NewTrainer(chainConfig(10, 0.01), WithMetrics(metrics), WithLogger(zap.NewNop()))
	net := chainNetwork(8)

	result, err := trainer.Train(context.Background(), 0, net, []model.Sample{model.NewSample([]float64{0}, 1.7)})
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Equal(t, 1, result.Epochs)
	require.Len(t, result.ErrorHistory, 1)
	assert.InDelta(t, 0, result.FinalError, 1e-12)
	assert.Equal(t, result.FinalError, net.CurrentError)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Epochs))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TrialsConverged))
}

func TestTrainRunsEpochBudgetAndReportsImprovements(t *testing.T) {
	var improvements []float64
	trainer := NewTrainer(chainConfig(3, 0.01), WithOnImproved(func(trial, epoch int, sse float64, params model.Parameters) {
		assert.Equal(t, 4, trial)
		assert.Equal(t, 1, params.Len())
		improvements = append(improvements, sse)
	}))
	net := chainNetwork(8)

	result, err := trainer.Train(context.Background(), 4, net, []model.Sample{model.NewSample([]float64{0}, 5)})
	require.NoError(t, err)

	assert.False(t, result.Converged)
	assert.Equal(t, 3, result.Epochs)
	require.Len(t, result.ErrorHistory, 3)
	// The spike stays on the 1.7 tick for small steps, so only the first
	// epoch improves on the initial infinity.
	for _, sse := range result.ErrorHistory {
		assert.InDelta(t, 0.5*3.3*3.3, sse, 1e-9)
	}
	assert.Len(t, improvements, 1)
	assert.Less(t, net.Neuron(1).Synapses[0].Weight, 8.0)
}

func TestTrainLargeStepReducesError(t *testing.T) {
	trainer := NewTrainer(chainConfig(2, 10))
	result, err := trainer.Train(context.Background(), 0, chainNetwork(8), []model.Sample{model.NewSample([]float64{0}, 5)})
	require.NoError(t, err)
	require.Len(t, result.ErrorHistory, 2)
	assert.Less(t, result.ErrorHistory[1], result.ErrorHistory[0])
}

func TestTrainFailsWithoutOutputSpike(t *testing.T) {
	trainer := NewTrainer(chainConfig(5, 0.01))
	_, err := trainer.Train(context.Background(), 0, chainNetwork(0.5), []model.Sample{model.NewSample([]float64{0}, 5)})
	require.ErrorIs(t, err, ErrNoOutputSpike)
}

func TestTrainValidatesInput(t *testing.T) {
	ctx := context.Background()
	samples := []model.Sample{model.NewSample([]float64{0}, 5)}

	_, err := NewTrainer(chainConfig(0, 0.01)).Train(ctx, 0, chainNetwork(8), samples)
	require.Error(t, err)

	cfg := chainConfig(1, 0.01)
	cfg.TimeStep = 0
	_, err = NewTrainer(cfg).Train(ctx, 0, chainNetwork(8), samples)
	require.ErrorIs(t, err, nn.ErrTimeStep)

	for _, maxTime := range []float64{0, math.NaN(), math.Inf(1)} {
		cfg = chainConfig(1, 0.01)
		cfg.MaxTime = maxTime
		_, err = NewTrainer(cfg).Train(ctx, 0, chainNetwork(0.5), samples)
		require.ErrorIs(t, err, nn.ErrMaxTime, "max time %v", maxTime)
	}

	cfg = chainConfig(1, 0.01)
	cfg.TimeStep = math.NaN()
	_, err = NewTrainer(cfg).Train(ctx, 0, chainNetwork(0.5), samples)
	require.ErrorIs(t, err, nn.ErrTimeStep)

	_, err = NewTrainer(chainConfig(1, 0.01)).Train(ctx, 0, chainNetwork(8), nil)
	require.Error(t, err)

	_, err = NewTrainer(chainConfig(1, 0.01)).Train(ctx, 0, chainNetwork(8), []model.Sample{model.NewSample([]float64{0, 0}, 5)})
	require.ErrorIs(t, err, nn.ErrSampleSize)
}

func TestTrainStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTrainer(chainConfig(10, 0.01)).Train(ctx, 0, chainNetwork(8), []model.Sample{model.NewSample([]float64{0}, 5)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunTrialsPicksLowestError(t *testing.T) {
	trainer := NewTrainer(chainConfig(1, 0.01))
	factory := func(rng *rand.Rand) (*nn.Network, error) {
		return chainNetwork(6 + 4*rng.Float64()), nil
	}
	cfg := TrialsConfig{Trials: 5, Seed: 3, Workers: 2, MaxRestarts: 1}

	result, err := trainer.RunTrials(context.Background(), cfg, factory, []model.Sample{model.NewSample([]float64{0}, 1.7)})
	require.NoError(t, err)
	require.Len(t, result.Trials, 5)

	seeds := map[int64]bool{}
	for i, trial := range result.Trials {
		assert.Equal(t, i, trial.Trial)
		assert.Equal(t, TrialSeed(cfg, i, 0), trial.Seed)
		assert.NotNil(t, trial.Network)
		assert.LessOrEqual(t, result.BestTrial().FinalError, trial.FinalError)
		seeds[trial.Seed] = true
	}
	assert.Len(t, seeds, 5)
}

func TestRunTrialsIsDeterministic(t *testing.T) {
	trainer := NewTrainer(chainConfig(3, 0.1))
	factory := func(rng *rand.Rand) (*nn.Network, error) {
		return chainNetwork(6 + 4*rng.Float64()), nil
	}
	cfg := TrialsConfig{Trials: 3, Seed: 11, Workers: 3}
	samples := []model.Sample{model.NewSample([]float64{0}, 4)}

	first, err := trainer.RunTrials(context.Background(), cfg, factory, samples)
	require.NoError(t, err)
	second, err := trainer.RunTrials(context.Background(), cfg, factory, samples)
	require.NoError(t, err)
	for i := range first.Trials {
		assert.Equal(t, first.Trials[i].ErrorHistory, second.Trials[i].ErrorHistory)
		assert.Equal(t, first.Trials[i].Network.Parameters(), second.Trials[i].Network.Parameters())
	}
}

func TestRunTrialsRestartsSilentNetworks(t *testing.T) {
	metrics := NewCollector("test")
	trainer := NewTrainer(chainConfig(2, 0.01), WithMetrics(metrics))
	var calls atomic.Int32
	factory := func(rng *rand.Rand) (*nn.Network, error) {
		if calls.Add(1) <= 2 {
			return chainNetwork(0.5), nil
		}
		return chainNetwork(8), nil
	}
	cfg := TrialsConfig{Trials: 1, Seed: 1, Workers: 1, MaxRestarts: 3}

	result, err := trainer.RunTrials(context.Background(), cfg, factory, []model.Sample{model.NewSample([]float64{0}, 1.7)})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Trials[0].Restarts)
	assert.Equal(t, TrialSeed(cfg, 0, 2), result.Trials[0].Seed)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Restarts))
}

func TestRunTrialsGivesUpAfterMaxRestarts(t *testing.T) {
	trainer := NewTrainer(chainConfig(2, 0.01))
	var calls atomic.Int32
	factory := func(rng *rand.Rand) (*nn.Network, error) {
		calls.Add(1)
		return chainNetwork(0.5), nil
	}
	cfg := TrialsConfig{Trials: 1, Seed: 1, Workers: 1, MaxRestarts: 2}

	_, err := trainer.RunTrials(context.Background(), cfg, factory, []model.Sample{model.NewSample([]float64{0}, 5)})
	require.ErrorIs(t, err, ErrRestartsExhausted)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunTrialsValidatesConfig(t *testing.T) {
	trainer := NewTrainer(chainConfig(1, 0.01))
	factory := func(rng *rand.Rand) (*nn.Network, error) { return chainNetwork(8), nil }
	samples := []model.Sample{model.NewSample([]float64{0}, 1.7)}

	_, err := trainer.RunTrials(context.Background(), TrialsConfig{Trials: 0}, factory, samples)
	require.Error(t, err)
	_, err = trainer.RunTrials(context.Background(), TrialsConfig{Trials: 1, MaxRestarts: -1}, factory, samples)
	require.Error(t, err)
	_, err = trainer.RunTrials(context.Background(), TrialsConfig{Trials: 1}, nil, samples)
	require.Error(t, err)
}

func TestXORScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("xor convergence scenario is slow")
	}

	ds, err := dataset.XOR(5)
	require.NoError(t, err)
	policy, err := nn.GetInitPolicy("xor")
	require.NoError(t, err)
	factory := func(rng *rand.Rand) (*nn.Network, error) {
		return nn.Create(ds.Names.Input, ds.Names.Hidden, ds.Names.Output, policy, rng)
	}

	trainer := NewTrainer(DefaultConfig())
	result, err := trainer.RunTrials(context.Background(), TrialsConfig{Trials: 4, Seed: 1, MaxRestarts: 50}, factory, ds.Samples)
	require.NoError(t, err)

	best := result.BestTrial()
	require.True(t, best.Converged, "no trial reached the target error: %+v", best.Result)
	assert.Less(t, best.FinalError, DefaultConfig().TargetError)

	cm, err := trainer.Evaluate(best.Network, ds, 100)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cm.Accuracy(), cm.String())
	assert.Equal(t, 400, cm.TotalPositives()+cm.TotalNegatives())
}
