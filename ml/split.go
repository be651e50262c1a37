package ml

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const (
	// SplitSeed and TestRatio are fixed so evaluation is reproducible.
	SplitSeed = 42
	TestRatio = 0.2
)

// StratifiedSplit partitions row indices into train and test sets that keep
// the class proportions of labels. The test set holds ceil(testRatio*n) rows,
// shared out between classes by largest remainder.
func StratifiedSplit(labels []int, testRatio float64, seed int64) (train []int, test []int, err error) {
	n := len(labels)
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio %v must be between 0 and 1", testRatio)
	}
	nTest := int(math.Ceil(testRatio * float64(n)))
	nTrain := n - nTest

	byClass := make(map[int][]int)
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	for _, c := range classes {
		if len(byClass[c]) < 2 {
			return nil, nil, newError(KindSchema, "the least populated class in %s has only %d member; at least 2 are needed to stratify", ColumnDowntime, len(byClass[c]))
		}
	}
	if nTest < len(classes) || nTrain < len(classes) {
		return nil, nil, newError(KindSchema, "dataset of %d rows is too small to split %d classes into train and test sets", n, len(classes))
	}

	allocation := allocateTestRows(classes, byClass, nTest, n)
	rng := rand.New(rand.NewSource(seed))
	for _, c := range classes {
		members := byClass[c]
		perm := rng.Perm(len(members))
		for i, p := range perm {
			if i < allocation[c] {
				test = append(test, members[p])
			} else {
				train = append(train, members[p])
			}
		}
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

func allocateTestRows(classes []int, byClass map[int][]int, nTest, n int) map[int]int {
	type share struct {
		class     int
		remainder float64
	}
	allocation := make(map[int]int, len(classes))
	shares := make([]share, 0, len(classes))
	assigned := 0
	for _, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		whole := int(math.Floor(exact))
		if whole > len(byClass[c])-1 {
			whole = len(byClass[c]) - 1
		}
		allocation[c] = whole
		assigned += whole
		shares = append(shares, share{class: c, remainder: exact - float64(whole)})
	}
	sort.SliceStable(shares, func(i, j int) bool {
		return shares[i].remainder > shares[j].remainder
	})
	for i := 0; assigned < nTest && i < len(shares)*2; i++ {
		c := shares[i%len(shares)].class
		if allocation[c] < len(byClass[c])-1 {
			allocation[c]++
			assigned++
		}
	}
	return allocation
}
