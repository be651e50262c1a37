package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
)

type ForestConfig struct {
	Trees     int   `json:"trees"`
	MaxDepth  int   `json:"max_depth"`
	Seed      int64 `json:"seed"`
	Bootstrap bool  `json:"bootstrap"`
}

func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:     100,
		MaxDepth:  6,
		Seed:      0,
		Bootstrap: true,
	}
}

// RandomForest averages the class probabilities of independently grown trees.
// Each tree draws its seed from the forest seed up front, so the fitted
// forest does not depend on how tree training is scheduled.
type RandomForest struct {
	Config      ForestConfig    `json:"config"`
	NumClasses  int             `json:"num_classes"`
	NumFeatures int             `json:"num_features"`
	Trees       []*DecisionTree `json:"trees"`
}

func NewRandomForest(config ForestConfig) *RandomForest {
	if config.Trees <= 0 {
		config.Trees = 100
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = 6
	}
	return &RandomForest{Config: config}
}

func (f *RandomForest) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}

	numClasses := 2
	for _, label := range labels {
		if label+1 > numClasses {
			numClasses = label + 1
		}
	}
	width := len(features[0])
	maxFeatures := int(math.Sqrt(float64(width)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	rng := rand.New(rand.NewSource(f.Config.Seed))
	samples := make([][]int, f.Config.Trees)
	trees := make([]*DecisionTree, f.Config.Trees)
	for t := range trees {
		trees[t] = &DecisionTree{Config: TreeConfig{
			MaxDepth:    f.Config.MaxDepth,
			MaxFeatures: maxFeatures,
			NumClasses:  numClasses,
			Seed:        rng.Int63(),
		}}
		samples[t] = bootstrapSample(rng, len(features), f.Config.Bootstrap)
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(trees) {
		workers = len(trees)
	}
	jobs := make(chan int)
	errs := make([]error, len(trees))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				errs[t] = trees[t].TrainSample(features, labels, samples[t])
			}
		}()
	}
	for t := range trees {
		jobs <- t
	}
	close(jobs)
	wg.Wait()

	for t, err := range errs {
		if err != nil {
			return fmt.Errorf("train tree %d: %w", t, err)
		}
	}
	f.NumClasses = numClasses
	f.NumFeatures = width
	f.Trees = trees
	return nil
}

func (f *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, errors.New("model not trained")
	}
	if len(features) != f.NumFeatures {
		return nil, newError(KindSchemaMismatch, "model expects %d features, got %d", f.NumFeatures, len(features))
	}
	proba := make([]float64, f.NumClasses)
	for _, tree := range f.Trees {
		p, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		for c := range p {
			proba[c] += p[c]
		}
	}
	for c := range proba {
		proba[c] /= float64(len(f.Trees))
	}
	return proba, nil
}

func (f *RandomForest) Predict(features []float64) (int, float64, error) {
	proba, err := f.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	label, confidence := argmax(proba)
	return label, confidence, nil
}

func bootstrapSample(rng *rand.Rand, n int, bootstrap bool) []int {
	sample := make([]int, n)
	for i := range sample {
		if bootstrap {
			sample[i] = rng.Intn(n)
		} else {
			sample[i] = i
		}
	}
	return sample
}
