package linear_model

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/alina-malkova/sanctions-labor-markets/pkg/errors"
)

// sparseRegressionData draws gaussian covariates and a target that loads on
// columns 0 and 1 only.
func sparseRegressionData(n, p int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))

	X := mat.NewDense(n, p, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		y.Set(i, 0, 3*X.At(i, 0)-2*X.At(i, 1)+0.1*rng.NormFloat64())
	}
	return X, y
}

func TestLassoCV_SupportRecovery(t *testing.T) {
	X, y := sparseRegressionData(200, 10, 1)

	l := NewLassoCV(WithLassoRandomState(1))
	require.NoError(t, l.Fit(X, y))
	require.True(t, l.IsFitted())

	selected := l.SelectedIndices()
	assert.Contains(t, selected, 0)
	assert.Contains(t, selected, 1)

	coef := l.Coef()
	assert.InDelta(t, 3, coef[0], 0.3)
	assert.InDelta(t, -2, coef[1], 0.3)
	assert.True(t, l.Converged())
}

func TestLassoCV_PredictAccuracy(t *testing.T) {
	X, y := sparseRegressionData(200, 5, 2)

	l := NewLassoCV(WithLassoRandomState(2))
	require.NoError(t, l.Fit(X, y))

	pred, err := l.Predict(X)
	require.NoError(t, err)

	var rss, tss, yMean float64
	n, _ := y.Dims()
	for i := 0; i < n; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(n)
	for i := 0; i < n; i++ {
		d := y.At(i, 0) - pred.At(i, 0)
		rss += d * d
		m := y.At(i, 0) - yMean
		tss += m * m
	}
	assert.Greater(t, 1-rss/tss, 0.95)
}

func TestLassoCV_PathIsDescending(t *testing.T) {
	X, y := sparseRegressionData(100, 4, 3)

	l := NewLassoCV(WithLassoLambdas(20), WithLassoRandomState(3))
	require.NoError(t, l.Fit(X, y))

	path := l.LambdaPath()
	require.Len(t, path, 20)
	for k := 1; k < len(path); k++ {
		assert.Less(t, path[k], path[k-1])
	}
	assert.InDelta(t, path[0]*defaultLambdaMinRatio, path[len(path)-1], path[0]*1e-6)

	mse := l.MSEPath()
	require.Len(t, mse, 20)
	assert.Contains(t, path, l.Lambda())
}

func TestLassoCV_Reproducible(t *testing.T) {
	X, y := sparseRegressionData(150, 8, 4)

	a := NewLassoCV(WithLassoRandomState(7))
	b := NewLassoCV(WithLassoRandomState(7))
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	assert.Equal(t, a.Coef(), b.Coef())
	assert.Equal(t, a.Lambda(), b.Lambda())
	assert.Equal(t, a.Intercept(), b.Intercept())
}

func TestLassoCV_InterceptOnCenteredTarget(t *testing.T) {
	X, y := sparseRegressionData(100, 3, 5)
	n, _ := y.Dims()
	for i := 0; i < n; i++ {
		y.Set(i, 0, y.At(i, 0)+10)
	}

	l := NewLassoCV(WithLassoRandomState(5))
	require.NoError(t, l.Fit(X, y))
	assert.InDelta(t, 10, l.Intercept(), 0.5)
}

func TestLassoCV_InputValidation(t *testing.T) {
	l := NewLassoCV()

	X := mat.NewDense(4, 2, []float64{1, 2, 3, 4, 5, 6, 7, 8})

	err := l.Fit(X, mat.NewDense(3, 1, []float64{1, 2, 3}))
	assert.Error(t, err, "row mismatch")

	err = l.Fit(X, mat.NewDense(4, 2, nil))
	assert.Error(t, err, "y must be a column vector")

	_, err = NewLassoCV().Predict(X)
	assert.Error(t, err, "predict before fit")
}

func TestSoftThreshold(t *testing.T) {
	assert.Equal(t, 0.0, softThreshold(0.5, 1))
	assert.Equal(t, 0.0, softThreshold(-0.5, 1))
	assert.InDelta(t, 1.0, softThreshold(2, 1), 1e-12)
	assert.InDelta(t, -1.0, softThreshold(-2, 1), 1e-12)
}

func TestLambdaPath_Endpoints(t *testing.T) {
	path := lambdaPath(2.0, 10, 1e-3)
	require.Len(t, path, 10)
	assert.InDelta(t, 2.0, path[0], 1e-12)
	assert.InDelta(t, 2e-3, path[9], 1e-12)

	// Degenerate lambdaMax still yields a usable positive path.
	for _, v := range lambdaPath(0, 5, 1e-3) {
		assert.Greater(t, v, 0.0)
	}
}

func TestFitLassoPath_WarmStartMonotoneSparsity(t *testing.T) {
	X, y := sparseRegressionData(120, 6, 6)
	cd := newColumnData(X)
	yv := vecFromMatrix(y)

	path := lambdaPath(lassoLambdaMax(cd, yv), 30, 1e-3)

	lastCount := 0
	fitLassoPath(cd, yv, path, defaultMaxIter, defaultTol,
		func(_ int, beta []float64, _ float64, _ int, converged bool) {
			require.True(t, converged)
			lastCount = countNonzero(beta)
		})

	// At the bottom of the path both signal columns are active.
	assert.GreaterOrEqual(t, lastCount, 2)

	// At lambdaMax everything is zeroed by construction.
	fitLassoPath(cd, yv, path[:1], defaultMaxIter, defaultTol,
		func(_ int, beta []float64, intercept float64, _ int, _ bool) {
			assert.Equal(t, 0, countNonzero(beta))
			yMean := 0.0
			for _, v := range yv {
				yMean += v
			}
			assert.InDelta(t, yMean/float64(len(yv)), intercept, 1e-12)
		})
}

func TestLassoCV_WarnsOnEmptySelection(t *testing.T) {
	// A constant target zeroes every coefficient at any positive lambda.
	rng := rand.New(rand.NewPCG(9, 9))
	n, p := 60, 4
	X := mat.NewDense(n, p, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		y.Set(i, 0, 5)
	}

	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	l := NewLassoCV(WithLassoRandomState(9))
	require.NoError(t, l.Fit(X, y))

	assert.Equal(t, 0, l.NumSelected())
	assert.InDelta(t, 5, l.Intercept(), 1e-12)

	found := false
	for _, w := range warnings {
		var dw *errors.DegenerateSelectionWarning
		if errors.As(w, &dw) {
			assert.Equal(t, "LassoCV", dw.Stage)
			assert.Equal(t, p, dw.Candidates)
			found = true
		}
	}
	assert.True(t, found, "empty selection should be flagged")
}

func TestMeanSquaredErrorOn_MatchesHeldOutResiduals(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
		7, 8,
	})
	cd := newColumnData(X)
	y := []float64{1, 2, 3, 4}
	beta := []float64{0.5, 0}

	// Rows 1 and 3: predictions 1.5+2 and 3.5+2, residuals -1.5 and -1.5.
	got := meanSquaredErrorOn(cd, y, []int{1, 3}, beta, 2)
	assert.InDelta(t, 2.25, got, 1e-12)
}

func TestLassoLambdaMax_ZeroesEverything(t *testing.T) {
	X, y := sparseRegressionData(80, 4, 8)
	cd := newColumnData(X)
	yv := vecFromMatrix(y)

	lmax := lassoLambdaMax(cd, yv)
	require.Greater(t, lmax, 0.0)

	fitLassoPath(cd, yv, []float64{lmax * (1 + 1e-9)}, defaultMaxIter, defaultTol,
		func(_ int, beta []float64, _ float64, _ int, _ bool) {
			for j, b := range beta {
				assert.Zerof(t, b, "coefficient %d nonzero at lambda max", j)
			}
		})
}
