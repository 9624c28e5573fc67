package linear_model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/alina-malkova/sanctions-labor-markets/core/model"
	"github.com/alina-malkova/sanctions-labor-markets/core/parallel"
	"github.com/alina-malkova/sanctions-labor-markets/metrics"
	"github.com/alina-malkova/sanctions-labor-markets/pkg/errors"
)

// LassoCV is an L1-penalized linear regression with the penalty strength
// chosen by k-fold cross-validation over a descending regularization path.
// The path is fit by cyclic coordinate descent with warm starts; the
// selected lambda minimizes mean held-out squared error and the model is
// refit on the full data at that lambda.
type LassoCV struct {
	state *model.StateManager

	// Hyperparameters
	nLambdas       int
	lambdaMinRatio float64
	cv             int
	maxIter        int
	tol            float64
	randomState    int64

	// Fitted attributes
	coef_       []float64
	intercept_  float64
	lambda_     float64
	lambdaPath_ []float64
	msePath_    []float64
	nIter_      int
	converged_  bool
}

var (
	_ model.Model = (*LassoCV)(nil)
	_ model.Model = (*LogisticLassoCV)(nil)
)

// LassoCVOption is a functional option for LassoCV.
type LassoCVOption func(*LassoCV)

// NewLassoCV creates a LassoCV with 100 path points, 5 folds and the
// documented defaults.
func NewLassoCV(opts ...LassoCVOption) *LassoCV {
	l := &LassoCV{
		state:          model.NewStateManager(),
		nLambdas:       100,
		lambdaMinRatio: defaultLambdaMinRatio,
		cv:             5,
		maxIter:        defaultMaxIter,
		tol:            defaultTol,
		randomState:    0,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// WithLassoLambdas sets the number of penalty strengths on the path.
func WithLassoLambdas(n int) LassoCVOption {
	return func(l *LassoCV) {
		if n > 0 {
			l.nLambdas = n
		}
	}
}

// WithLassoLambdaMinRatio sets the ratio of the smallest to the largest
// penalty on the path.
func WithLassoLambdaMinRatio(ratio float64) LassoCVOption {
	return func(l *LassoCV) {
		if ratio > 0 && ratio < 1 {
			l.lambdaMinRatio = ratio
		}
	}
}

// WithLassoCVFolds sets the number of cross-validation folds.
func WithLassoCVFolds(k int) LassoCVOption {
	return func(l *LassoCV) {
		if k >= 2 {
			l.cv = k
		}
	}
}

// WithLassoMaxIter sets the coordinate-descent sweep cap per lambda.
func WithLassoMaxIter(maxIter int) LassoCVOption {
	return func(l *LassoCV) {
		if maxIter > 0 {
			l.maxIter = maxIter
		}
	}
}

// WithLassoTol sets the convergence tolerance on the maximum coefficient
// change per sweep.
func WithLassoTol(tol float64) LassoCVOption {
	return func(l *LassoCV) {
		if tol > 0 {
			l.tol = tol
		}
	}
}

// WithLassoRandomState seeds the fold shuffle.
func WithLassoRandomState(seed int64) LassoCVOption {
	return func(l *LassoCV) {
		l.randomState = seed
	}
}

// Fit selects lambda by cross-validation and refits on the full data.
// y must be an n-by-1 matrix aligned with the rows of X.
func (l *LassoCV) Fit(X, y mat.Matrix) error {
	n, p := X.Dims()
	yRows, yCols := y.Dims()

	if n == 0 || p == 0 {
		return errors.NewModelError("LassoCV.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != n {
		return errors.NewDimensionError("LassoCV.Fit", n, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("LassoCV.Fit", "y must be a column vector")
	}

	cd := newColumnData(X)
	yv := vecFromMatrix(y)

	path := lambdaPath(lassoLambdaMax(cd, yv), l.nLambdas, l.lambdaMinRatio)
	folds := newSharedFolds(l.cv, l.randomState, n)

	// Held-out squared error per fold and lambda. Each fold owns its row,
	// so parallel fold fits share nothing mutable.
	foldErrs := make([][]float64, len(folds))
	parallel.Parallelize(len(folds), func(start, end int) {
		for f := start; f < end; f++ {
			fold := folds[f]
			trainCd := cd.subset(fold.TrainIndices)
			trainY := subsetVec(yv, fold.TrainIndices)

			errs := make([]float64, len(path))
			fitLassoPath(trainCd, trainY, path, l.maxIter, l.tol,
				func(k int, beta []float64, intercept float64, _ int, _ bool) {
					errs[k] = meanSquaredErrorOn(cd, yv, fold.TestIndices, beta, intercept)
				})
			foldErrs[f] = errs
		}
	})

	l.msePath_ = averageScores(foldErrs, len(path))
	kSel := argminFirst(l.msePath_)
	l.lambdaPath_ = path
	l.lambda_ = path[kSel]

	// Refit on the full data, warm-starting down the path to the selected
	// lambda. The path fold is strictly sequential: each solution seeds the
	// next smaller lambda.
	fitLassoPath(cd, yv, path[:kSel+1], l.maxIter, l.tol,
		func(k int, beta []float64, intercept float64, nIter int, converged bool) {
			if k == kSel {
				l.coef_ = append([]float64(nil), beta...)
				l.intercept_ = intercept
				l.nIter_ = nIter
				l.converged_ = converged
			}
		})

	if !l.converged_ {
		errors.Warn(errors.NewConvergenceWarning("LassoCV", l.nIter_,
			"best iterate at the selected lambda returned"))
	}
	if countNonzero(l.coef_) == 0 {
		errors.Warn(errors.NewDegenerateSelectionWarning("LassoCV", p))
	}

	l.state.SetDimensions(p, n)
	l.state.SetFitted()
	return nil
}

// Predict returns fitted values as an n-by-1 matrix.
func (l *LassoCV) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !l.state.IsFitted() {
		return nil, errors.NewNotFittedError("LassoCV", "Predict")
	}

	n, p := X.Dims()
	if p != len(l.coef_) {
		return nil, errors.NewDimensionError("LassoCV.Predict", len(l.coef_), p, 1)
	}

	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		pred := l.intercept_
		for j := 0; j < p; j++ {
			if l.coef_[j] != 0 {
				pred += X.At(i, j) * l.coef_[j]
			}
		}
		out.Set(i, 0, pred)
	}
	return out, nil
}

// Coef returns the fitted coefficient vector (zeros included).
func (l *LassoCV) Coef() []float64 {
	if l.coef_ == nil {
		return nil
	}
	return append([]float64(nil), l.coef_...)
}

// Intercept returns the fitted intercept.
func (l *LassoCV) Intercept() float64 {
	return l.intercept_
}

// Lambda returns the cross-validated penalty strength.
func (l *LassoCV) Lambda() float64 {
	return l.lambda_
}

// LambdaPath returns the descending penalty path that was scanned.
func (l *LassoCV) LambdaPath() []float64 {
	return append([]float64(nil), l.lambdaPath_...)
}

// MSEPath returns the mean held-out squared error per path point.
func (l *LassoCV) MSEPath() []float64 {
	return append([]float64(nil), l.msePath_...)
}

// SelectedIndices returns the indices of the nonzero coefficients over the
// fixed column order.
func (l *LassoCV) SelectedIndices() []int {
	return nonzeroIndices(l.coef_)
}

// NumSelected returns the size of the selected set.
func (l *LassoCV) NumSelected() int {
	return countNonzero(l.coef_)
}

// Converged reports whether coordinate descent met tolerance at the
// selected lambda.
func (l *LassoCV) Converged() bool {
	return l.converged_
}

// IsFitted reports whether Fit has completed.
func (l *LassoCV) IsFitted() bool {
	return l.state.IsFitted()
}

// lassoLambdaMax is the smallest penalty that zeroes every coefficient:
// the maximum absolute correlation of a centered column with the centered
// target, scaled by 1/n.
func lassoLambdaMax(cd *columnData, y []float64) float64 {
	n := float64(cd.n)
	yMean := 0.0
	for _, v := range y {
		yMean += v
	}
	yMean /= n

	maxAbs := 0.0
	for j := 0; j < cd.p; j++ {
		dot := 0.0
		col := cd.cols[j]
		for i := 0; i < cd.n; i++ {
			dot += (col[i] - cd.means[j]) * (y[i] - yMean)
		}
		if a := math.Abs(dot / n); a > maxAbs {
			maxAbs = a
		}
	}
	return maxAbs
}

// fitLassoPath runs cyclic coordinate descent along a descending lambda
// path with warm starts, invoking onLambda after each path point with the
// current solution. The callback must copy beta if it retains it.
func fitLassoPath(cd *columnData, y []float64, path []float64, maxIter int, tol float64,
	onLambda func(k int, beta []float64, intercept float64, nIter int, converged bool)) {
	n := cd.n
	nf := float64(n)

	yMean := 0.0
	for _, v := range y {
		yMean += v
	}
	yMean /= nf

	beta := make([]float64, cd.p)
	// Residuals of the centered problem; beta starts at zero so the
	// residual starts at the centered target.
	resid := make([]float64, n)
	for i := 0; i < n; i++ {
		resid[i] = y[i] - yMean
	}

	for k, lambda := range path {
		nIter := 0
		converged := false
		for iter := 0; iter < maxIter; iter++ {
			maxChange := 0.0
			for j := 0; j < cd.p; j++ {
				if cd.meanSqs[j] == 0 {
					beta[j] = 0
					continue
				}

				col := cd.cols[j]
				mean := cd.means[j]
				dot := 0.0
				for i := 0; i < n; i++ {
					dot += (col[i] - mean) * resid[i]
				}
				rho := dot/nf + cd.meanSqs[j]*beta[j]
				newB := softThreshold(rho, lambda) / cd.meanSqs[j]

				if newB != beta[j] {
					delta := newB - beta[j]
					for i := 0; i < n; i++ {
						resid[i] -= (col[i] - mean) * delta
					}
					beta[j] = newB
					if a := math.Abs(delta); a > maxChange {
						maxChange = a
					}
				}
			}

			nIter = iter + 1
			if maxChange < tol {
				converged = true
				break
			}
		}

		intercept := yMean
		for j := 0; j < cd.p; j++ {
			intercept -= beta[j] * cd.means[j]
		}

		onLambda(k, beta, intercept, nIter, converged)
	}
}

// meanSquaredErrorOn scores a coefficient vector on the given rows of the
// original (unsubset) data.
func meanSquaredErrorOn(cd *columnData, y []float64, rows []int, beta []float64, intercept float64) float64 {
	yTrue := mat.NewVecDense(len(rows), nil)
	yPred := mat.NewVecDense(len(rows), nil)
	for k, r := range rows {
		pred := intercept
		for j := 0; j < cd.p; j++ {
			if beta[j] != 0 {
				pred += cd.cols[j][r] * beta[j]
			}
		}
		yTrue.SetVec(k, y[r])
		yPred.SetVec(k, pred)
	}

	// Folds are never empty, so the score cannot error.
	mse, _ := metrics.MSE(yTrue, yPred)
	return mse
}

// averageScores averages per-fold score rows into a single path-length
// vector.
func averageScores(foldScores [][]float64, nPath int) []float64 {
	out := make([]float64, nPath)
	for _, row := range foldScores {
		for k, v := range row {
			out[k] += v
		}
	}
	for k := range out {
		out[k] /= float64(len(foldScores))
	}
	return out
}

// argminFirst returns the index of the first minimum, which on a descending
// path prefers the larger (sparser) lambda on ties.
func argminFirst(v []float64) int {
	best := 0
	for k := 1; k < len(v); k++ {
		if v[k] < v[best] {
			best = k
		}
	}
	return best
}
