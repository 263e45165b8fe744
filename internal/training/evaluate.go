package training

import (
	"fmt"

	"spikeprop/internal/dataset"
	"spikeprop/internal/nn"
	"spikeprop/internal/stats"
)

// Evaluate predicts every sample of ds testRuns times and tallies the
// classified output spikes against the sample labels. A silent output is
// classified from NoSpike like any other prediction.
func (t *Trainer) Evaluate(net *nn.Network, ds dataset.Dataset, testRuns int) (stats.ConfusionMatrix, error) {
	var cm stats.ConfusionMatrix
	if testRuns < 0 {
		return cm, fmt.Errorf("test runs must be >= 0, got %d", testRuns)
	}
	for run := 0; run < testRuns; run++ {
		for _, sample := range ds.Samples {
			spike, ok, err := net.Predict(sample, t.cfg.MaxTime, t.cfg.TimeStep)
			if err != nil {
				return cm, err
			}
			prediction := ds.Classify(spike)
			label := ds.Label(sample)
			cm.Add(prediction, label)

			switch {
			case !ok:
				t.metrics.observePrediction(outcomeSilent)
			case prediction == label:
				t.metrics.observePrediction(outcomeCorrect)
			default:
				t.metrics.observePrediction(outcomeIncorrect)
			}
		}
	}
	return cm, nil
}
