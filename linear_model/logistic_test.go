package linear_model

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/alina-malkova/sanctions-labor-markets/pkg/errors"
)

// logisticData draws gaussian covariates and labels from a logit that loads
// on columns 0 and 1 only.
func logisticData(n, p int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))

	X := mat.NewDense(n, p, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		z := 2*X.At(i, 0) - 1.5*X.At(i, 1)
		if rng.Float64() < sigmoid(z) {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func TestLogisticLassoCV_SignRecovery(t *testing.T) {
	X, y := logisticData(400, 6, 1)

	l := NewLogisticLassoCV(WithLogisticRandomState(1))
	require.NoError(t, l.Fit(X, y))
	require.True(t, l.IsFitted())

	coef := l.Coef()
	assert.Greater(t, coef[0], 0.0)
	assert.Less(t, coef[1], 0.0)

	selected := l.SelectedIndices()
	assert.Contains(t, selected, 0)
	assert.Contains(t, selected, 1)
}

func TestLogisticLassoCV_ProbabilitiesValid(t *testing.T) {
	X, y := logisticData(300, 4, 2)

	l := NewLogisticLassoCV(WithLogisticRandomState(2))
	require.NoError(t, l.Fit(X, y))

	probas, err := l.PredictProba(X)
	require.NoError(t, err)

	n, _ := probas.Dims()
	for i := 0; i < n; i++ {
		p := probas.At(i, 0)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestLogisticLassoCV_BoundedUnderSeparation(t *testing.T) {
	// Perfectly separable data: unpenalized logistic regression diverges,
	// the L1 penalty keeps coefficients finite.
	n := 100
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	rng := rand.New(rand.NewPCG(3, 3))
	for i := 0; i < n; i++ {
		x0 := rng.NormFloat64()
		X.Set(i, 0, x0)
		X.Set(i, 1, rng.NormFloat64())
		if x0 > 0 {
			y.Set(i, 0, 1)
		}
	}

	l := NewLogisticLassoCV(WithLogisticRandomState(3))
	require.NoError(t, l.Fit(X, y))

	for _, b := range l.Coef() {
		require.False(t, math.IsNaN(b))
		require.False(t, math.IsInf(b, 0))
		assert.Less(t, math.Abs(b), 1e3)
	}

	pred, err := l.Predict(X)
	require.NoError(t, err)

	correct := 0
	for i := 0; i < n; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	assert.Greater(t, float64(correct)/float64(n), 0.9)
}

func TestLogisticLassoCV_RejectsNonBinaryLabels(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{1, 2, 3})
	y := mat.NewDense(3, 1, []float64{0, 1, 2})

	err := NewLogisticLassoCV().Fit(X, y)
	assert.Error(t, err)
}

func TestLogisticLassoCV_Reproducible(t *testing.T) {
	X, y := logisticData(200, 5, 4)

	a := NewLogisticLassoCV(WithLogisticRandomState(9))
	b := NewLogisticLassoCV(WithLogisticRandomState(9))
	require.NoError(t, a.Fit(X, y))
	require.NoError(t, b.Fit(X, y))

	assert.Equal(t, a.Coef(), b.Coef())
	assert.Equal(t, a.Lambda(), b.Lambda())
}

func TestFitLogisticPath_WarmStartMonotoneSparsity(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 11))
	n, p := 400, 8
	X := mat.NewDense(n, p, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		z := 2*X.At(i, 0) - 1.5*X.At(i, 1) + X.At(i, 2)
		if rng.Float64() < sigmoid(z) {
			y.Set(i, 0, 1)
		}
	}

	cd := newColumnData(X)
	yv := vecFromMatrix(y)
	path := lambdaPath(logisticLambdaMax(cd, yv), 25, 1e-3)

	prev := 0
	fitLogisticPath(cd, yv, path, defaultMaxIter, 50, defaultTol,
		func(k int, beta []float64, _ float64, _ int, _ bool) {
			count := countNonzero(beta)
			assert.GreaterOrEqualf(t, count, prev, "active set shrank at path point %d", k)
			prev = count
		})

	// All three signal columns are active at the bottom of the path.
	assert.GreaterOrEqual(t, prev, 3)
}

func TestLogisticLassoCV_WarnsOnEmptySelection(t *testing.T) {
	// Labels split in half with feature columns repeating identically in
	// both halves, so no column carries any signal about the label and
	// every coefficient stays zero at any positive lambda.
	n, p := 40, 3
	X := mat.NewDense(n, p, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			X.Set(i, j, float64((i%20)*(j+1)))
		}
		if i < 20 {
			y.Set(i, 0, 1)
		}
	}

	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	l := NewLogisticLassoCV(WithLogisticRandomState(3))
	require.NoError(t, l.Fit(X, y))

	assert.Equal(t, 0, l.NumSelected())

	found := false
	for _, w := range warnings {
		var dw *errors.DegenerateSelectionWarning
		if errors.As(w, &dw) {
			assert.Equal(t, "LogisticLassoCV", dw.Stage)
			assert.Equal(t, p, dw.Candidates)
			found = true
		}
	}
	assert.True(t, found, "empty selection should be flagged")
}

func TestDevianceOn_ClipsAndAverages(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1000})
	cd := newColumnData(X)
	y := []float64{1, 0}

	// Row 0 scores at sigmoid(0)=0.5; row 1 saturates and is clipped,
	// so the mean stays finite.
	got := devianceOn(cd, y, []int{0, 1}, []float64{1}, 0)
	assert.False(t, math.IsInf(got, 1))
	assert.Greater(t, got, math.Log(2)/2)
}

func TestLogisticLambdaMax_ZeroesEverything(t *testing.T) {
	X, y := logisticData(150, 4, 5)
	cd := newColumnData(X)
	yv := vecFromMatrix(y)

	lmax := logisticLambdaMax(cd, yv)
	require.Greater(t, lmax, 0.0)

	// Margin over lambda max: intermediate reweighting rounds can push the
	// working gradient slightly past the null-model gradient.
	fitLogisticPath(cd, yv, []float64{lmax * 1.1}, defaultMaxIter, 50, defaultTol,
		func(_ int, beta []float64, intercept float64, _ int, _ bool) {
			for j, b := range beta {
				assert.Zerof(t, b, "coefficient %d nonzero at lambda max", j)
			}
			// The null model intercept is the log odds of the base rate.
			yMean := 0.0
			for _, v := range yv {
				yMean += v
			}
			yMean /= float64(len(yv))
			assert.InDelta(t, math.Log(yMean/(1-yMean)), intercept, 0.05)
		})
}
