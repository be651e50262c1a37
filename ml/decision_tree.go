package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

type TreeConfig struct {
	MaxDepth    int   `json:"max_depth"`
	MaxFeatures int   `json:"max_features"`
	NumClasses  int   `json:"num_classes"`
	Seed        int64 `json:"seed"`
}

type DecisionTree struct {
	Config TreeConfig `json:"config"`
	Nodes  []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx  int       `json:"feature_idx"`
	Threshold   float64   `json:"threshold"`
	LeftChild   int       `json:"left_child"`
	RightChild  int       `json:"right_child"`
	Probability []float64 `json:"probability"`
	IsLeaf      bool      `json:"is_leaf"`
}

func NewDecisionTree(maxDepth int) *DecisionTree {
	return &DecisionTree{Config: TreeConfig{MaxDepth: maxDepth}}
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	indices := make([]int, len(features))
	for i := range indices {
		indices[i] = i
	}
	return dt.TrainSample(features, labels, indices)
}

// TrainSample grows the tree on the rows named by indices. Repeated indices
// count as repeated samples, which is how bootstrap samples are fed in.
func (dt *DecisionTree) TrainSample(features [][]float64, labels []int, indices []int) error {
	if len(features) == 0 || len(labels) == 0 || len(indices) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if dt.Config.MaxDepth <= 0 {
		dt.Config.MaxDepth = 3
	}
	numClasses := dt.Config.NumClasses
	for _, label := range labels {
		if label < 0 {
			return errors.New("labels must be non-negative")
		}
		if label+1 > numClasses {
			numClasses = label + 1
		}
	}
	dt.Config.NumClasses = numClasses

	b := &treeBuilder{
		features: features,
		labels:   labels,
		config:   dt.Config,
		rng:      rand.New(rand.NewSource(dt.Config.Seed)),
	}
	dt.Nodes = nil
	dt.grow(b, indices, 0)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	proba, err := dt.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	label, confidence := argmax(proba)
	return label, confidence, nil
}

func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if len(dt.Nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Probability, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

type treeBuilder struct {
	features [][]float64
	labels   []int
	config   TreeConfig
	rng      *rand.Rand
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
}

// grow appends the subtree for indices and returns the index of its root.
func (dt *DecisionTree) grow(b *treeBuilder, indices []int, depth int) int {
	counts := classCounts(b.labels, indices, b.config.NumClasses)
	idx := len(dt.Nodes)
	dt.Nodes = append(dt.Nodes, TreeNode{
		FeatureIdx:  -1,
		LeftChild:   -1,
		RightChild:  -1,
		Probability: distribution(counts, len(indices)),
		IsLeaf:      true,
	})

	if depth >= b.config.MaxDepth || len(indices) < 2 || isPure(counts) {
		return idx
	}
	best, ok := b.findBestSplit(indices, counts)
	if !ok {
		return idx
	}

	left, right := partition(b.features, indices, best.feature, best.threshold)
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	leftIdx := dt.grow(b, left, depth+1)
	rightIdx := dt.grow(b, right, depth+1)
	node := &dt.Nodes[idx]
	node.FeatureIdx = best.feature
	node.Threshold = best.threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.IsLeaf = false
	return idx
}

// findBestSplit scans features in random order. It stops after MaxFeatures
// candidates once at least one valid split has been found.
func (b *treeBuilder) findBestSplit(indices []int, total []int) (split, bool) {
	featureCount := len(b.features[indices[0]])
	maxFeatures := b.config.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > featureCount {
		maxFeatures = featureCount
	}

	best := split{feature: -1, impurity: math.MaxFloat64}
	sorted := make([]int, len(indices))
	left := make([]int, len(total))
	right := make([]int, len(total))
	n := len(indices)

	for visited, featureIdx := range b.rng.Perm(featureCount) {
		if visited >= maxFeatures && best.feature >= 0 {
			break
		}
		copy(sorted, indices)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.features[sorted[i]][featureIdx] < b.features[sorted[j]][featureIdx]
		})
		for c := range left {
			left[c] = 0
			right[c] = total[c]
		}
		for i := 0; i < n-1; i++ {
			label := b.labels[sorted[i]]
			left[label]++
			right[label]--
			current := b.features[sorted[i]][featureIdx]
			next := b.features[sorted[i+1]][featureIdx]
			if next <= current {
				continue
			}
			nLeft := i + 1
			nRight := n - nLeft
			impurity := (float64(nLeft)*gini(left, nLeft) + float64(nRight)*gini(right, nRight)) / float64(n)
			if impurity < best.impurity {
				threshold := current + (next-current)/2
				if threshold >= next {
					threshold = current
				}
				best = split{feature: featureIdx, threshold: threshold, impurity: impurity}
			}
		}
	}
	return best, best.feature >= 0
}

func partition(features [][]float64, indices []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if features[i][featureIdx] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func classCounts(labels []int, indices []int, numClasses int) []int {
	counts := make([]int, numClasses)
	for _, i := range indices {
		counts[labels[i]]++
	}
	return counts
}

func distribution(counts []int, total int) []float64 {
	proba := make([]float64, len(counts))
	if total == 0 {
		return proba
	}
	for c, count := range counts {
		proba[c] = float64(count) / float64(total)
	}
	return proba
}

func gini(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(total)
		impurity -= prob * prob
	}
	return impurity
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, count := range counts {
		if count > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// argmax returns the most probable class; ties go to the lower class.
func argmax(proba []float64) (int, float64) {
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	if len(proba) == 0 {
		return 0, 0
	}
	return best, proba[best]
}
