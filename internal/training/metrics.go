package training

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics of the training harness. A nil
// *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Epochs          prometheus.Counter
	EpochError      *prometheus.GaugeVec
	EpochDuration   prometheus.Histogram
	Restarts        prometheus.Counter
	TrialsConverged prometheus.Counter
	Predictions     *prometheus.CounterVec
}

// NewCollector creates the metrics on a private registry so several
// collectors can coexist in one process.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	epochs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epochs_total",
			Help:      "Total number of training epochs completed",
		},
	)

	epochError := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "epoch_sse",
			Help:      "Sum of squared spike time errors of the last epoch",
		},
		[]string{"trial"},
	)

	epochDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "epoch_duration_seconds",
			Help:      "Training epoch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	restarts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trial_restarts_total",
			Help:      "Total number of trials restarted because the output never fired",
		},
	)

	converged := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trials_converged_total",
			Help:      "Total number of trials that reached the target error",
		},
	)

	predictions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of evaluated predictions",
		},
		[]string{"outcome"},
	)

	registry.MustRegister(
		epochs,
		epochError,
		epochDuration,
		restarts,
		converged,
		predictions,
	)

	return &Collector{
		registry:        registry,
		Epochs:          epochs,
		EpochError:      epochError,
		EpochDuration:   epochDuration,
		Restarts:        restarts,
		TrialsConverged: converged,
		Predictions:     predictions,
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) observeEpoch(trial int, sse float64, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Epochs.Inc()
	c.EpochError.WithLabelValues(strconv.Itoa(trial)).Set(sse)
	c.EpochDuration.Observe(elapsed.Seconds())
}

func (c *Collector) observeRestart() {
	if c == nil {
		return
	}
	c.Restarts.Inc()
}

func (c *Collector) observeConverged() {
	if c == nil {
		return
	}
	c.TrialsConverged.Inc()
}

const (
	outcomeCorrect   = "correct"
	outcomeIncorrect = "incorrect"
	outcomeSilent    = "silent"
)

func (c *Collector) observePrediction(outcome string) {
	if c == nil {
		return
	}
	c.Predictions.WithLabelValues(outcome).Inc()
}
