package stats

import (
	"fmt"
	"math"
)

// Undefined is reported by a ConfusionMatrix ratio whose denominator is zero.
const Undefined = -1.0

// ConfusionMatrix tallies binary predictions against labels.
type ConfusionMatrix struct {
	TruePositives  int `json:"true_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
}

// Add records one prediction.
func (m *ConfusionMatrix) Add(prediction, label bool) {
	switch {
	case prediction && label:
		m.TruePositives++
	case prediction && !label:
		m.FalsePositives++
	case !prediction && label:
		m.FalseNegatives++
	default:
		m.TrueNegatives++
	}
}

func (m *ConfusionMatrix) MergeWith(other ConfusionMatrix) {
	m.TruePositives += other.TruePositives
	m.TrueNegatives += other.TrueNegatives
	m.FalsePositives += other.FalsePositives
	m.FalseNegatives += other.FalseNegatives
}

func (m ConfusionMatrix) TotalPositives() int {
	return m.TruePositives + m.FalseNegatives
}

func (m ConfusionMatrix) TotalNegatives() int {
	return m.TrueNegatives + m.FalsePositives
}

// Sensitivity is also known as recall.
func (m ConfusionMatrix) Sensitivity() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
}

func (m ConfusionMatrix) Specificity() float64 {
	return ratio(m.TrueNegatives, m.FalsePositives+m.TrueNegatives)
}

func (m ConfusionMatrix) Precision() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
}

func (m ConfusionMatrix) NegativePredictiveValue() float64 {
	return ratio(m.TrueNegatives, m.TrueNegatives+m.FalseNegatives)
}

func (m ConfusionMatrix) FalsePositiveRate() float64 {
	return ratio(m.FalsePositives, m.FalsePositives+m.TrueNegatives)
}

func (m ConfusionMatrix) FalseNegativeRate() float64 {
	return ratio(m.FalseNegatives, m.FalseNegatives+m.TruePositives)
}

func (m ConfusionMatrix) FalseDiscoveryRate() float64 {
	return ratio(m.FalsePositives, m.FalsePositives+m.TruePositives)
}

func (m ConfusionMatrix) Accuracy() float64 {
	return ratio(m.TruePositives+m.TrueNegatives, m.TotalPositives()+m.TotalNegatives())
}

func (m ConfusionMatrix) F1Score() float64 {
	return ratio(2*m.TruePositives, 2*m.TruePositives+m.FalsePositives+m.FalseNegatives)
}

// MatthewsCorrelation is 0 for no relation between predictions and labels
// and +1/-1 for perfect agreement/disagreement.
func (m ConfusionMatrix) MatthewsCorrelation() float64 {
	tp, tn := float64(m.TruePositives), float64(m.TrueNegatives)
	fp, fn := float64(m.FalsePositives), float64(m.FalseNegatives)
	denominator := math.Sqrt((tp + fp) * (tp + fn) * (tn + fp) * (tn + fn))
	if denominator == 0 {
		return Undefined
	}
	return (tp*tn - fp*fn) / denominator
}

func (m ConfusionMatrix) String() string {
	return fmt.Sprintf(
		"Pos:%d, Neg:%d\nTP: %d, FP: %d\nTN: %d, FN: %d\nSensitivity: %g, Specificity: %g\nAccuracy: %d%%, F1Score: %g",
		m.TotalPositives(), m.TotalNegatives(),
		m.TruePositives, m.FalsePositives,
		m.TrueNegatives, m.FalseNegatives,
		m.Sensitivity(), m.Specificity(),
		int(math.Round(m.Accuracy()*100)), m.F1Score(),
	)
}

// ConfusionReport is the counts plus every derived metric, as written to
// confusion.json.
type ConfusionReport struct {
	ConfusionMatrix
	Sensitivity             float64 `json:"sensitivity"`
	Specificity             float64 `json:"specificity"`
	Precision               float64 `json:"precision"`
	NegativePredictiveValue float64 `json:"negative_predictive_value"`
	FalsePositiveRate       float64 `json:"false_positive_rate"`
	FalseNegativeRate       float64 `json:"false_negative_rate"`
	FalseDiscoveryRate      float64 `json:"false_discovery_rate"`
	Accuracy                float64 `json:"accuracy"`
	F1Score                 float64 `json:"f1_score"`
	MatthewsCorrelation     float64 `json:"matthews_correlation"`
}

func (m ConfusionMatrix) Report() ConfusionReport {
	return ConfusionReport{
		ConfusionMatrix:         m,
		Sensitivity:             m.Sensitivity(),
		Specificity:             m.Specificity(),
		Precision:               m.Precision(),
		NegativePredictiveValue: m.NegativePredictiveValue(),
		FalsePositiveRate:       m.FalsePositiveRate(),
		FalseNegativeRate:       m.FalseNegativeRate(),
		FalseDiscoveryRate:      m.FalseDiscoveryRate(),
		Accuracy:                m.Accuracy(),
		F1Score:                 m.F1Score(),
		MatthewsCorrelation:     m.MatthewsCorrelation(),
	}
}

func ratio(numerator, denominator int) float64 {
	if denominator == 0 {
		return Undefined
	}
	return float64(numerator) / float64(denominator)
}
