package scoring

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"inidars/internal/features"
	"inidars/internal/model"
)

// LabeledEvent is one training row.
type LabeledEvent struct {
	Event  model.Event
	Attack bool
}

type TrainOptions struct {
	Trees      int
	SampleSize int
	// Holdout is the fraction of rows kept back for evaluation.
	Holdout float64
	// Threshold is the score above which a holdout row counts as flagged.
	Threshold float64
	Seed      int64
}

func (o *TrainOptions) applyDefaults() {
	if o.Trees <= 0 {
		o.Trees = 150
	}
	if o.SampleSize <= 0 {
		o.SampleSize = 256
	}
	if o.Holdout <= 0 || o.Holdout >= 1 {
		o.Holdout = 0.2
	}
	if o.Threshold <= 0 || o.Threshold >= 1 {
		o.Threshold = 0.6
	}
}

// Train fits a forest on the benign rows of the training split and measures
// it against the holdout split. Attack rows only take part in evaluation.
func Train(rows []LabeledEvent, opts TrainOptions) (*ForestModel, error) {
	opts.applyDefaults()
	if len(rows) < 2 {
		return nil, errors.New("need at least two labelled rows")
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	shuffled := make([]LabeledEvent, len(rows))
	copy(shuffled, rows)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	testSize := int(float64(len(shuffled)) * opts.Holdout)
	if testSize == 0 {
		testSize = 1
	}
	test, train := shuffled[:testSize], shuffled[testSize:]

	extractor := features.NewExtractor()
	benign := make([][]float64, 0, len(train))
	for i := range train {
		if !train[i].Attack {
			benign = append(benign, extractor.Extract(&train[i].Event))
		}
	}
	if len(benign) < 2 {
		return nil, fmt.Errorf("training split has %d benign rows, need at least two", len(benign))
	}

	forest, err := FitIsolationForest(benign, opts.Trees, opts.SampleSize, rng)
	if err != nil {
		return nil, err
	}

	trainedAt := time.Now().UTC()
	m := NewForestModel(forest, model.ModelInfo{
		Type:            forestType,
		Mode:            model.ModelModeTrained,
		FeatureVersion:  features.Version,
		FeatureNames:    features.Names,
		TrainingSamples: len(benign),
		TrainedAt:       &trainedAt,
	})

	metrics, err := Evaluate(m, test, opts.Threshold)
	if err != nil {
		return nil, err
	}
	m.info.Metrics = &metrics
	return m, nil
}

// Evaluate scores rows with m and compares the flags against the labels.
// Attack is the positive class.
func Evaluate(m Model, rows []LabeledEvent, threshold float64) (model.ModelMetrics, error) {
	extractor := features.NewExtractor()
	var tp, fp, tn, fn int

	for i := range rows {
		score, err := m.Score(extractor.Extract(&rows[i].Event))
		if err != nil {
			return model.ModelMetrics{}, err
		}
		flagged := score > threshold
		switch {
		case flagged && rows[i].Attack:
			tp++
		case flagged && !rows[i].Attack:
			fp++
		case !flagged && rows[i].Attack:
			fn++
		default:
			tn++
		}
	}

	metrics := model.ModelMetrics{Threshold: threshold, TestSize: len(rows)}
	if len(rows) > 0 {
		metrics.Accuracy = float64(tp+tn) / float64(len(rows))
	}
	if tp+fp > 0 {
		metrics.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		metrics.Recall = float64(tp) / float64(tp+fn)
	}
	if metrics.Precision+metrics.Recall > 0 {
		metrics.F1 = 2 * metrics.Precision * metrics.Recall / (metrics.Precision + metrics.Recall)
	}
	return metrics, nil
}

// SyntheticAttacks generates hostile events: failed logins, sweeps over
// high ports and floods at night.
func SyntheticAttacks(rng *rand.Rand, n int) []model.Event {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	actions := []string{"failed", "denied", "drop", "reject"}
	protocols := []string{"tcp", "udp", "icmp"}

	events := make([]model.Event, 0, n)
	for i := 0; i < n; i++ {
		packets := int64(500 + rng.Intn(20000))
		events = append(events, model.Event{
			Timestamp:  base.Add(time.Duration(rng.Intn(5)) * time.Hour).Add(time.Duration(rng.Intn(3600)) * time.Second),
			SourceIP:   fmt.Sprintf("203.0.113.%d", 1+rng.Intn(254)),
			DestIP:     fmt.Sprintf("10.1.0.%d", 1+rng.Intn(254)),
			SourcePort: rng.Intn(1024),
			DestPort:   1024 + rng.Intn(64511),
			Protocol:   protocols[rng.Intn(len(protocols))],
			Action:     actions[rng.Intn(len(actions))],
			Bytes:      packets * int64(40+rng.Intn(60)),
			Packets:    packets,
			EventType:  "network",
		})
	}
	return events
}
