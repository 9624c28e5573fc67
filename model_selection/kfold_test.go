package model_selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKFold_Partition(t *testing.T) {
	kf := NewKFold(5, false, 0)
	folds := kf.Split(23)
	require.Len(t, folds, 5)

	seen := make(map[int]int)
	for _, fold := range folds {
		for _, idx := range fold.TestIndices {
			seen[idx]++
		}
		// Train and test are disjoint and cover all samples.
		assert.Equal(t, 23, len(fold.TrainIndices)+len(fold.TestIndices))
	}

	// Every sample appears in exactly one test fold.
	require.Len(t, seen, 23)
	for idx, count := range seen {
		assert.Equalf(t, 1, count, "sample %d in %d test folds", idx, count)
	}
}

func TestKFold_FoldSizes(t *testing.T) {
	// 23 = 5*4 + 3, so the first three folds get the extra sample.
	folds := NewKFold(5, false, 0).Split(23)
	require.Len(t, folds, 5)

	sizes := []int{5, 5, 5, 4, 4}
	for i, fold := range folds {
		assert.Equal(t, sizes[i], len(fold.TestIndices))
	}
}

func TestKFold_NoShuffleIsContiguous(t *testing.T) {
	folds := NewKFold(4, false, 0).Split(8)
	require.Len(t, folds, 4)
	assert.Equal(t, []int{0, 1}, folds[0].TestIndices)
	assert.Equal(t, []int{2, 3}, folds[1].TestIndices)
	assert.Equal(t, []int{6, 7}, folds[3].TestIndices)
}

func TestKFold_ShuffleReproducible(t *testing.T) {
	a := NewKFold(5, true, 7).Split(50)
	b := NewKFold(5, true, 7).Split(50)
	require.Equal(t, a, b)

	c := NewKFold(5, true, 8).Split(50)
	assert.NotEqual(t, a, c)
}

func TestKFold_MoreFoldsThanSamples(t *testing.T) {
	// nSplits is clamped so every fold is non-empty.
	folds := NewKFold(10, false, 0).Split(4)
	for _, fold := range folds {
		assert.NotEmpty(t, fold.TestIndices)
	}
}
