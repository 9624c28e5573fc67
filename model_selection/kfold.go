// Package model_selection provides the k-fold splitter shared by the
// cross-validated solvers. Both penalized solvers reuse one fold assignment
// across the whole regularization path so held-out errors are comparable
// between penalty strengths.
package model_selection

import (
	"math/rand/v2"
)

// Fold holds the train/test index partition for a single CV fold.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold partitions row indices into k disjoint, near-equal-size folds.
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int64
}

// NewKFold creates a k-fold splitter. Fewer than 2 splits falls back to 5.
func NewKFold(nSplits int, shuffle bool, randomSeed int64) *KFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &KFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits.
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold over nSamples rows.
// With Shuffle unset the folds are contiguous index blocks; with it set,
// membership is a seeded permutation so repeated runs reproduce the same
// assignment. NSplits is clamped to nSamples so no fold is empty.
func (kf *KFold) Split(nSamples int) []Fold {
	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}

	if kf.Shuffle {
		r := rand.New(rand.NewPCG(uint64(kf.RandomSeed), uint64(kf.RandomSeed)))
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	nSplits := kf.NSplits
	if nSplits > nSamples {
		nSplits = nSamples
	}

	folds := make([]Fold, nSplits)
	foldSize := nSamples / nSplits
	remainder := nSamples % nSplits

	isTest := make([]bool, nSamples)
	currentIdx := 0
	for i := 0; i < nSplits; i++ {
		testSize := foldSize
		if i < remainder {
			testSize++
		}

		testIndices := make([]int, testSize)
		copy(testIndices, indices[currentIdx:currentIdx+testSize])

		for _, idx := range testIndices {
			isTest[idx] = true
		}
		trainIndices := make([]int, 0, nSamples-testSize)
		for j := 0; j < nSamples; j++ {
			if !isTest[j] {
				trainIndices = append(trainIndices, j)
			}
		}
		for _, idx := range testIndices {
			isTest[idx] = false
		}

		folds[i] = Fold{
			TrainIndices: trainIndices,
			TestIndices:  testIndices,
		}

		currentIdx += testSize
	}

	return folds
}
