package ml

import "firewatch/internal/models"

// Features is the classifier input vector ordered (temp, hum, gas, flame)
type Features [4]float64

// FeatureNames names the vector positions in order
var FeatureNames = [4]string{"temp", "hum", "gas", "flame"}

// Classifier maps a sensor vector to a hazard label. Implementations are
// built once at startup and are safe for concurrent use.
type Classifier interface {
	Classify(features Features) (string, error)
}

// FeaturesOf extracts the classifier vector from a reading
func FeaturesOf(r models.Reading) Features {
	return Features(r.Features())
}

// RuleClassifier is a fixed-threshold fallback used when no trained model
// artifact is configured.
type RuleClassifier struct {
	WarnTemp   float64
	WarnGas    float64
	DangerGas  float64
	FlameLevel float64
}

// DefaultRuleClassifier returns the fallback thresholds
func DefaultRuleClassifier() RuleClassifier {
	return RuleClassifier{
		WarnTemp:   45,
		WarnGas:    250,
		DangerGas:  400,
		FlameLevel: 1,
	}
}

func (c RuleClassifier) Classify(f Features) (string, error) {
	temp, gas, flame := f[0], f[2], f[3]

	switch {
	case flame >= c.FlameLevel || gas >= c.DangerGas:
		return LabelDanger, nil
	case temp >= c.WarnTemp || gas >= c.WarnGas:
		return LabelWarning, nil
	default:
		return LabelSafe, nil
	}
}

// Labels produced by the sample model and the rule fallback
const (
	LabelSafe    = "AMAN"
	LabelWarning = "WASPADA"
	LabelDanger  = "BAHAYA"
)
