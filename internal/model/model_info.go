package model

import "time"

const (
	ModelModeTrained     = "trained"
	ModelModeDemo        = "demo"
	ModelModeUnavailable = "unavailable"

	DemoModeNote = "N/A (Demo Mode)"
)

// ModelMetrics are measured on a held-out split when a model is trained offline.
type ModelMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Threshold float64 `json:"threshold"`
	TestSize  int     `json:"test_samples"`
}

// ModelInfo describes the anomaly model currently loaded by the scorer.
type ModelInfo struct {
	Type            string        `json:"type"`
	Mode            string        `json:"mode"`
	FeatureVersion  string        `json:"feature_version"`
	Features        int           `json:"features"`
	FeatureNames    []string      `json:"feature_names,omitempty"`
	TrainingSamples int           `json:"training_samples"`
	Trees           int           `json:"trees"`
	SampleSize      int           `json:"sample_size"`
	TrainedAt       *time.Time    `json:"trained_at,omitempty"`
	Metrics         *ModelMetrics `json:"metrics,omitempty"`
	Note            string        `json:"note,omitempty"`
}
