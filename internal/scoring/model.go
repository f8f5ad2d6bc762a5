package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"inidars/internal/features"
	"inidars/internal/model"
)

// Model produces an anomaly score in [0,1] for a feature vector.
type Model interface {
	Score(vec []float64) (float64, error)
	Info() model.ModelInfo
}

const forestType = "Isolation Forest"

// ForestModel is an isolation forest bound to the feature layout it was
// trained on.
type ForestModel struct {
	forest *IsolationForest
	info   model.ModelInfo
}

// modelFile is the on-disk representation written by the training tool.
type modelFile struct {
	Info   model.ModelInfo  `json:"info"`
	Forest *IsolationForest `json:"forest"`
}

func NewForestModel(forest *IsolationForest, info model.ModelInfo) *ForestModel {
	info.Trees = len(forest.Trees)
	info.SampleSize = forest.SampleSize
	info.Features = forest.NumFeatures
	if info.Type == "" {
		info.Type = forestType
	}
	return &ForestModel{forest: forest, info: info}
}

func (m *ForestModel) Score(vec []float64) (float64, error) {
	score, err := m.forest.Score(vec)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrModelUnavailable, err)
	}
	return score, nil
}

func (m *ForestModel) Info() model.ModelInfo {
	return m.info
}

// LoadForestModel reads a model written by SaveForestModel and checks it
// matches the current feature layout.
func LoadForestModel(path string) (*ForestModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}

	var file modelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model file %s: %v", path, err)
	}
	if file.Forest == nil || len(file.Forest.Trees) == 0 {
		return nil, fmt.Errorf("model file %s contains no trees", path)
	}
	if file.Info.FeatureVersion != features.Version {
		return nil, fmt.Errorf("model file %s uses feature version %q, engine extracts %q",
			path, file.Info.FeatureVersion, features.Version)
	}
	if file.Forest.NumFeatures != features.Count {
		return nil, fmt.Errorf("model file %s expects %d features, engine extracts %d",
			path, file.Forest.NumFeatures, features.Count)
	}
	if err := file.Forest.Validate(); err != nil {
		return nil, fmt.Errorf("model file %s is malformed: %v", path, err)
	}

	file.Info.Mode = model.ModelModeTrained
	return NewForestModel(file.Forest, file.Info), nil
}

// SaveForestModel writes the model atomically next to path.
func SaveForestModel(path string, m *ForestModel) error {
	data, err := json.Marshal(modelFile{Info: m.info, Forest: m.forest})
	if err != nil {
		return fmt.Errorf("failed to encode model: %v", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create model directory: %v", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model file: %v", err)
	}
	return os.Rename(tmp, path)
}

const (
	demoSeed    = 42
	demoSamples = 1000
	demoTrees   = 100
	demoSubset  = 256
)

// NewDemoModel trains a forest on synthetic benign traffic so the engine can
// score events before a real model has been trained. It is deterministic.
func NewDemoModel() (*ForestModel, error) {
	rng := rand.New(rand.NewSource(demoSeed))
	extractor := features.NewExtractor()

	samples := make([][]float64, 0, demoSamples)
	for _, event := range SyntheticTraffic(rng, demoSamples) {
		samples = append(samples, extractor.Extract(&event))
	}

	forest, err := FitIsolationForest(samples, demoTrees, demoSubset, rng)
	if err != nil {
		return nil, err
	}

	return NewForestModel(forest, model.ModelInfo{
		Type:            forestType,
		Mode:            model.ModelModeDemo,
		FeatureVersion:  features.Version,
		FeatureNames:    features.Names,
		TrainingSamples: len(samples),
		Note:            model.DemoModeNote,
	}), nil
}

var (
	benignServices = []struct {
		port     int
		protocol string
	}{
		{80, "http"}, {443, "https"}, {443, "tcp"}, {53, "udp"}, {22, "ssh"}, {8080, "tcp"},
	}
	benignActions = []string{"allow", "accept", "success", "allow"}
)

// SyntheticTraffic generates plausible benign events: ephemeral client ports,
// well-known service ports, modest transfer sizes, business hours.
func SyntheticTraffic(rng *rand.Rand, n int) []model.Event {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := make([]model.Event, 0, n)

	for i := 0; i < n; i++ {
		svc := benignServices[rng.Intn(len(benignServices))]
		packets := int64(2 + rng.Intn(40))
		bytes := packets * int64(200+rng.Intn(1100))

		events = append(events, model.Event{
			Timestamp:  base.Add(time.Duration(8+rng.Intn(11)) * time.Hour).Add(time.Duration(rng.Intn(3600)) * time.Second),
			SourceIP:   fmt.Sprintf("10.0.%d.%d", rng.Intn(4), 1+rng.Intn(254)),
			DestIP:     fmt.Sprintf("10.1.0.%d", 1+rng.Intn(254)),
			SourcePort: 32768 + rng.Intn(28232),
			DestPort:   svc.port,
			Protocol:   svc.protocol,
			Action:     benignActions[rng.Intn(len(benignActions))],
			Bytes:      bytes,
			Packets:    packets,
			EventType:  "network",
		})
	}
	return events
}

// UnavailableModel stands in when no model could be loaded; every score
// fails, which makes the scorer degrade to rules-only.
type UnavailableModel struct {
	Reason string
}

func (u UnavailableModel) Score([]float64) (float64, error) {
	return 0, model.ErrModelUnavailable
}

func (u UnavailableModel) Info() model.ModelInfo {
	return model.ModelInfo{
		Type:           forestType,
		Mode:           model.ModelModeUnavailable,
		FeatureVersion: features.Version,
		Features:       features.Count,
		Note:           u.Reason,
	}
}

// LoadModel loads the trained model at path. A missing file falls back to
// the demo model; any other failure yields an UnavailableModel.
func LoadModel(path string) (Model, error) {
	if path != "" {
		m, err := LoadForestModel(path)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return UnavailableModel{Reason: err.Error()}, err
		}
	}

	demo, err := NewDemoModel()
	if err != nil {
		return UnavailableModel{Reason: err.Error()}, err
	}
	return demo, nil
}
