package scoring

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

const eulerGamma = 0.5772156649015329

// IsolationForest is an ensemble of random isolation trees. Points that are
// isolated in few splits are anomalous.
type IsolationForest struct {
	Trees       []*Node `json:"trees"`
	SampleSize  int     `json:"sample_size"`
	NumFeatures int     `json:"num_features"`
}

// Node is either an internal split or a leaf holding Size training points.
type Node struct {
	Feature int     `json:"f,omitempty"`
	Split   float64 `json:"s,omitempty"`
	Left    *Node   `json:"l,omitempty"`
	Right   *Node   `json:"r,omitempty"`
	Size    int     `json:"n,omitempty"`
}

func (n *Node) leaf() bool {
	return n.Left == nil && n.Right == nil
}

// FitIsolationForest grows numTrees trees, each on a random subsample of
// sampleSize rows. The same rng seed always yields the same forest.
func FitIsolationForest(samples [][]float64, numTrees, sampleSize int, rng *rand.Rand) (*IsolationForest, error) {
	if len(samples) < 2 {
		return nil, errors.New("isolation forest needs at least two samples")
	}
	if numTrees <= 0 {
		return nil, errors.New("isolation forest needs at least one tree")
	}

	numFeatures := len(samples[0])
	for i, row := range samples {
		if len(row) != numFeatures {
			return nil, fmt.Errorf("sample %d has %d features, expected %d", i, len(row), numFeatures)
		}
	}

	if sampleSize <= 1 || sampleSize > len(samples) {
		sampleSize = len(samples)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sampleSize))))

	forest := &IsolationForest{
		Trees:       make([]*Node, 0, numTrees),
		SampleSize:  sampleSize,
		NumFeatures: numFeatures,
	}

	for i := 0; i < numTrees; i++ {
		idx := rng.Perm(len(samples))[:sampleSize]
		subset := make([][]float64, sampleSize)
		for j, k := range idx {
			subset[j] = samples[k]
		}
		forest.Trees = append(forest.Trees, growTree(subset, 0, heightLimit, rng))
	}

	return forest, nil
}

func growTree(rows [][]float64, depth, limit int, rng *rand.Rand) *Node {
	if depth >= limit || len(rows) <= 1 {
		return &Node{Size: len(rows)}
	}

	numFeatures := len(rows[0])
	mins := make([]float64, numFeatures)
	maxs := make([]float64, numFeatures)
	copy(mins, rows[0])
	copy(maxs, rows[0])
	for _, row := range rows[1:] {
		for f, v := range row {
			mins[f] = math.Min(mins[f], v)
			maxs[f] = math.Max(maxs[f], v)
		}
	}

	candidates := make([]int, 0, numFeatures)
	for f := 0; f < numFeatures; f++ {
		if maxs[f] > mins[f] {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return &Node{Size: len(rows)}
	}

	feature := candidates[rng.Intn(len(candidates))]
	split := mins[feature] + rng.Float64()*(maxs[feature]-mins[feature])

	var left, right [][]float64
	for _, row := range rows {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &Node{
		Feature: feature,
		Split:   split,
		Left:    growTree(left, depth+1, limit, rng),
		Right:   growTree(right, depth+1, limit, rng),
	}
}

// Score returns the anomaly score 2^(-E[h(x)]/c(ψ)) in [0,1]. Scores near 1
// are anomalies; scores well below 0.5 are normal.
func (f *IsolationForest) Score(x []float64) (float64, error) {
	if len(x) != f.NumFeatures {
		return 0, fmt.Errorf("vector has %d features, model expects %d", len(x), f.NumFeatures)
	}
	if len(f.Trees) == 0 {
		return 0, errors.New("isolation forest has no trees")
	}

	total := 0.0
	for _, tree := range f.Trees {
		total += pathLength(tree, x, 0)
	}
	mean := total / float64(len(f.Trees))

	norm := averagePathLength(f.SampleSize)
	if norm <= 0 {
		return 0, errors.New("isolation forest sample size too small")
	}

	score := math.Pow(2, -mean/norm)
	return math.Max(0, math.Min(1, score)), nil
}

// Validate checks the forest can score any vector of NumFeatures values:
// every split node has both children and a feature index in range.
func (f *IsolationForest) Validate() error {
	if len(f.Trees) == 0 {
		return errors.New("isolation forest has no trees")
	}
	if f.NumFeatures <= 0 {
		return errors.New("isolation forest has no features")
	}
	if f.SampleSize < 2 {
		return fmt.Errorf("isolation forest sample size %d is too small", f.SampleSize)
	}

	for i, root := range f.Trees {
		if root == nil {
			return fmt.Errorf("tree %d is empty", i)
		}
		stack := []*Node{root}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if n.leaf() {
				if n.Size < 0 {
					return fmt.Errorf("tree %d has a leaf with negative size", i)
				}
				continue
			}
			if n.Left == nil || n.Right == nil {
				return fmt.Errorf("tree %d has a split with a missing child", i)
			}
			if n.Feature < 0 || n.Feature >= f.NumFeatures {
				return fmt.Errorf("tree %d splits on feature %d, forest has %d", i, n.Feature, f.NumFeatures)
			}
			if math.IsNaN(n.Split) {
				return fmt.Errorf("tree %d has a NaN split", i)
			}
			stack = append(stack, n.Left, n.Right)
		}
	}
	return nil
}

func pathLength(n *Node, x []float64, depth int) float64 {
	for !n.leaf() {
		if x[n.Feature] < n.Split {
			n = n.Left
		} else {
			n = n.Right
		}
		depth++
	}
	return float64(depth) + averagePathLength(n.Size)
}

// averagePathLength is c(n), the mean path length of an unsuccessful BST search.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	h := math.Log(float64(n-1)) + eulerGamma
	return 2*h - 2*float64(n-1)/float64(n)
}
