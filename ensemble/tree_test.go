package ensemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDecisionTreeRegressor_FitPredict(t *testing.T) {
	// Piecewise-constant target: one split on feature 0 reproduces it.
	X := mat.NewDense(8, 2, []float64{
		0, 5,
		1, 4,
		2, 3,
		3, 2,
		10, 1,
		11, 0,
		12, 9,
		13, 8,
	})
	y := mat.NewDense(8, 1, []float64{
		1, 1, 1, 1,
		7, 7, 7, 7,
	})

	dt := NewDecisionTreeRegressor(0, WithTreeMaxFeatures(2))
	require.NoError(t, dt.Fit(X, y))

	pred, err := dt.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		assert.InDeltaf(t, y.At(i, 0), pred.At(i, 0), 1e-12, "row %d", i)
	}

	// New points on either side of the gap.
	XTest := mat.NewDense(2, 2, []float64{
		1.5, 6,
		11.5, 6,
	})
	testPred, err := dt.Predict(XTest)
	require.NoError(t, err)
	assert.InDelta(t, 1, testPred.At(0, 0), 1e-12)
	assert.InDelta(t, 7, testPred.At(1, 0), 1e-12)
}

func TestDecisionTreeRegressor_DepthCap(t *testing.T) {
	// A depth-1 stump produces at most two distinct predictions.
	n := 32
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		y.Set(i, 0, float64(i*i))
	}

	dt := NewDecisionTreeRegressor(0, WithTreeMaxDepth(1), WithTreeMaxFeatures(1))
	require.NoError(t, dt.Fit(X, y))

	pred, err := dt.Predict(X)
	require.NoError(t, err)

	distinct := map[float64]bool{}
	for i := 0; i < n; i++ {
		distinct[pred.At(i, 0)] = true
	}
	assert.LessOrEqual(t, len(distinct), 2)
}

func TestDecisionTreeRegressor_Importances(t *testing.T) {
	// Target depends on feature 1 only.
	n := 40
	X := mat.NewDense(n, 3, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i%7))
		X.Set(i, 1, float64(i))
		X.Set(i, 2, float64(i%3))
		if i >= n/2 {
			y.Set(i, 0, 10)
		}
	}

	dt := NewDecisionTreeRegressor(0, WithTreeMaxFeatures(3))
	require.NoError(t, dt.Fit(X, y))

	imp := dt.GetFeatureImportances()
	require.Len(t, imp, 3)

	var total float64
	for _, v := range imp {
		total += v
	}
	assert.InDelta(t, 1, total, 1e-10)
	assert.Greater(t, imp[1], imp[0])
	assert.Greater(t, imp[1], imp[2])
}

func TestDecisionTreeRegressor_ConstantTarget(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{5, 5, 5, 5})

	dt := NewDecisionTreeRegressor(0)
	require.NoError(t, dt.Fit(X, y))

	pred, err := dt.Predict(X)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 5, pred.At(i, 0), 1e-12)
	}
}

func TestNormalizeImportances_AllZero(t *testing.T) {
	// No splits means no importance mass to distribute.
	out := normalizeImportances([]float64{0, 0, 0})
	for _, v := range out {
		assert.Zero(t, v)
	}
}
