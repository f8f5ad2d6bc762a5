package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"inidars/internal/model"
	"inidars/internal/scoring"
	"inidars/internal/utils"
)

func main() {
	var (
		input     = flag.String("input", "", "Labelled CSV (header row; a label column plus event fields)")
		output    = flag.String("output", "models/isolation_forest.json", "Where to write the trained model")
		synthetic = flag.Int("synthetic", 0, "Train on N synthetic rows instead of a CSV (20% attacks)")
		trees     = flag.Int("trees", 150, "Number of isolation trees")
		sample    = flag.Int("sample-size", 256, "Rows per tree")
		holdout   = flag.Float64("holdout", 0.2, "Fraction of rows kept back for evaluation")
		threshold = flag.Float64("threshold", 0.6, "Anomaly score above which a row counts as flagged")
		seed      = flag.Int64("seed", 42, "Random seed")
		logLevel  = flag.String("log-level", "INFO", "Log level")
	)
	flag.Parse()

	logger := utils.NewLogger(*logLevel, "text")

	var rows []scoring.LabeledEvent
	switch {
	case *input != "":
		f, err := os.Open(*input)
		if err != nil {
			logger.Fatalf("Failed to open %s: %v", *input, err)
		}
		rows, err = readCSV(f)
		f.Close()
		if err != nil {
			logger.Fatalf("Failed to read %s: %v", *input, err)
		}
	case *synthetic > 0:
		rows = syntheticRows(*synthetic, *seed)
	default:
		fmt.Fprintln(os.Stderr, "either -input or -synthetic is required")
		flag.Usage()
		os.Exit(2)
	}

	attacks := 0
	for _, r := range rows {
		if r.Attack {
			attacks++
		}
	}
	logger.Infof("Loaded %d rows (%d benign, %d attack)", len(rows), len(rows)-attacks, attacks)

	m, err := scoring.Train(rows, scoring.TrainOptions{
		Trees:      *trees,
		SampleSize: *sample,
		Holdout:    *holdout,
		Threshold:  *threshold,
		Seed:       *seed,
	})
	if err != nil {
		logger.Fatalf("Training failed: %v", err)
	}

	info := m.Info()
	logger.Infof("Trained %d trees on %d benign rows", info.Trees, info.TrainingSamples)
	if met := info.Metrics; met != nil {
		logger.Infof("Holdout (%d rows, threshold %.2f): accuracy %.4f, precision %.4f, recall %.4f, F1 %.4f",
			met.TestSize, met.Threshold, met.Accuracy, met.Precision, met.Recall, met.F1)
	}

	if err := scoring.SaveForestModel(*output, m); err != nil {
		logger.Fatalf("Failed to save model: %v", err)
	}
	logger.Infof("Model written to %s", *output)
}

func syntheticRows(n int, seed int64) []scoring.LabeledEvent {
	rng := rand.New(rand.NewSource(seed))
	attacks := n / 5
	rows := make([]scoring.LabeledEvent, 0, n)
	for _, e := range scoring.SyntheticTraffic(rng, n-attacks) {
		rows = append(rows, scoring.LabeledEvent{Event: e})
	}
	for _, e := range scoring.SyntheticAttacks(rng, attacks) {
		rows = append(rows, scoring.LabeledEvent{Event: e, Attack: true})
	}
	return rows
}

// readCSV reads rows whose columns are named by the header. Recognised
// columns are the event JSON field names and "label"; others are ignored.
func readCSV(r io.Reader) ([]scoring.LabeledEvent, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["label"]; !ok {
		return nil, errors.New("header has no label column")
	}

	var rows []scoring.LabeledEvent
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row, err := parseRow(cols, record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(cols map[string]int, record []string) (scoring.LabeledEvent, error) {
	get := func(name string) string {
		if i, ok := cols[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	atoi := func(name string) (int64, error) {
		v := get(name)
		if v == "" {
			return 0, nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return n, nil
	}

	var row scoring.LabeledEvent
	e := &row.Event
	e.SourceIP = get("source_ip")
	e.DestIP = get("dest_ip")
	e.Protocol = strings.ToLower(get("protocol"))
	e.Action = strings.ToLower(get("action"))
	e.EventType = get("event_type")

	if ts := get("timestamp"); ts != "" {
		parsed, err := model.ParseTimestamp(ts)
		if err != nil {
			return row, err
		}
		e.Timestamp = parsed
	}

	for name, dst := range map[string]*int64{"bytes": &e.Bytes, "packets": &e.Packets} {
		n, err := atoi(name)
		if err != nil {
			return row, err
		}
		*dst = n
	}
	srcPort, err := atoi("source_port")
	if err != nil {
		return row, err
	}
	dstPort, err := atoi("dest_port")
	if err != nil {
		return row, err
	}
	e.SourcePort, e.DestPort = int(srcPort), int(dstPort)

	switch strings.ToLower(get("label")) {
	case "", "0", "normal", "benign", "false":
	default:
		row.Attack = true
	}
	return row, nil
}
