package linear_model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/alina-malkova/sanctions-labor-markets/core/model"
	"github.com/alina-malkova/sanctions-labor-markets/core/parallel"
	"github.com/alina-malkova/sanctions-labor-markets/metrics"
	"github.com/alina-malkova/sanctions-labor-markets/pkg/errors"
)

// LogisticLassoCV is an L1-penalized binary logistic regression with the
// penalty chosen by k-fold cross-validation, sharing the path and warm-start
// machinery of LassoCV. Each path point is solved by an outer
// iteratively-reweighted loop around a penalized weighted coordinate-descent
// sweep. The L1 penalty keeps coefficient magnitudes bounded even under
// perfect separation, so probabilities are always well defined.
type LogisticLassoCV struct {
	state *model.StateManager

	// Hyperparameters
	nLambdas       int
	lambdaMinRatio float64
	cv             int
	maxIter        int
	maxIRLS        int
	tol            float64
	randomState    int64

	// Fitted attributes
	coef_        []float64
	intercept_   float64
	lambda_      float64
	lambdaPath_  []float64
	devPath_     []float64
	nIter_       int
	converged_   bool
}

// LogisticLassoCVOption is a functional option for LogisticLassoCV.
type LogisticLassoCVOption func(*LogisticLassoCV)

// NewLogisticLassoCV creates a LogisticLassoCV with 25 path points, 5 folds
// and the documented defaults.
func NewLogisticLassoCV(opts ...LogisticLassoCVOption) *LogisticLassoCV {
	l := &LogisticLassoCV{
		state:          model.NewStateManager(),
		nLambdas:       25,
		lambdaMinRatio: defaultLambdaMinRatio,
		cv:             5,
		maxIter:        defaultMaxIter,
		maxIRLS:        50,
		tol:            defaultTol,
		randomState:    0,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// WithLogisticLambdas sets the number of penalty strengths on the path.
func WithLogisticLambdas(n int) LogisticLassoCVOption {
	return func(l *LogisticLassoCV) {
		if n > 0 {
			l.nLambdas = n
		}
	}
}

// WithLogisticCVFolds sets the number of cross-validation folds.
func WithLogisticCVFolds(k int) LogisticLassoCVOption {
	return func(l *LogisticLassoCV) {
		if k >= 2 {
			l.cv = k
		}
	}
}

// WithLogisticMaxIter sets the inner coordinate-descent sweep cap.
func WithLogisticMaxIter(maxIter int) LogisticLassoCVOption {
	return func(l *LogisticLassoCV) {
		if maxIter > 0 {
			l.maxIter = maxIter
		}
	}
}

// WithLogisticTol sets the convergence tolerance.
func WithLogisticTol(tol float64) LogisticLassoCVOption {
	return func(l *LogisticLassoCV) {
		if tol > 0 {
			l.tol = tol
		}
	}
}

// WithLogisticRandomState seeds the fold shuffle.
func WithLogisticRandomState(seed int64) LogisticLassoCVOption {
	return func(l *LogisticLassoCV) {
		l.randomState = seed
	}
}

// Fit selects lambda by cross-validated held-out deviance and refits on the
// full data. y must be an n-by-1 matrix of {0,1} labels.
func (l *LogisticLassoCV) Fit(X, y mat.Matrix) error {
	n, p := X.Dims()
	yRows, yCols := y.Dims()

	if n == 0 || p == 0 {
		return errors.NewModelError("LogisticLassoCV.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != n {
		return errors.NewDimensionError("LogisticLassoCV.Fit", n, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("LogisticLassoCV.Fit", "y must be a column vector")
	}

	yv := vecFromMatrix(y)
	for i, v := range yv {
		if v != 0 && v != 1 {
			return errors.NewValidationError("y", "labels must be binary {0,1}",
				map[string]interface{}{"row": i, "value": v})
		}
	}

	cd := newColumnData(X)

	path := lambdaPath(logisticLambdaMax(cd, yv), l.nLambdas, l.lambdaMinRatio)
	folds := newSharedFolds(l.cv, l.randomState, n)

	foldErrs := make([][]float64, len(folds))
	parallel.Parallelize(len(folds), func(start, end int) {
		for f := start; f < end; f++ {
			fold := folds[f]
			trainCd := cd.subset(fold.TrainIndices)
			trainY := subsetVec(yv, fold.TrainIndices)

			errs := make([]float64, len(path))
			fitLogisticPath(trainCd, trainY, path, l.maxIter, l.maxIRLS, l.tol,
				func(k int, beta []float64, intercept float64, _ int, _ bool) {
					errs[k] = devianceOn(cd, yv, fold.TestIndices, beta, intercept)
				})
			foldErrs[f] = errs
		}
	})

	l.devPath_ = averageScores(foldErrs, len(path))
	kSel := argminFirst(l.devPath_)
	l.lambdaPath_ = path
	l.lambda_ = path[kSel]

	fitLogisticPath(cd, yv, path[:kSel+1], l.maxIter, l.maxIRLS, l.tol,
		func(k int, beta []float64, intercept float64, nIter int, converged bool) {
			if k == kSel {
				l.coef_ = append([]float64(nil), beta...)
				l.intercept_ = intercept
				l.nIter_ = nIter
				l.converged_ = converged
			}
		})

	if !l.converged_ {
		errors.Warn(errors.NewConvergenceWarning("LogisticLassoCV", l.nIter_,
			"best iterate at the selected lambda returned"))
	}
	if countNonzero(l.coef_) == 0 {
		errors.Warn(errors.NewDegenerateSelectionWarning("LogisticLassoCV", p))
	}

	l.state.SetDimensions(p, n)
	l.state.SetFitted()
	return nil
}

// PredictProba returns P(y=1|x) as an n-by-1 matrix.
func (l *LogisticLassoCV) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !l.state.IsFitted() {
		return nil, errors.NewNotFittedError("LogisticLassoCV", "PredictProba")
	}

	n, p := X.Dims()
	if p != len(l.coef_) {
		return nil, errors.NewDimensionError("LogisticLassoCV.PredictProba", len(l.coef_), p, 1)
	}

	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		z := l.intercept_
		for j := 0; j < p; j++ {
			if l.coef_[j] != 0 {
				z += X.At(i, j) * l.coef_[j]
			}
		}
		out.Set(i, 0, sigmoid(z))
	}
	return out, nil
}

// Predict returns hard {0,1} labels at the 0.5 threshold.
func (l *LogisticLassoCV) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := l.PredictProba(X)
	if err != nil {
		return nil, err
	}

	n, _ := probas.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if probas.At(i, 0) >= 0.5 {
			out.Set(i, 0, 1)
		}
	}
	return out, nil
}

// Coef returns the fitted coefficient vector (zeros included).
func (l *LogisticLassoCV) Coef() []float64 {
	if l.coef_ == nil {
		return nil
	}
	return append([]float64(nil), l.coef_...)
}

// Intercept returns the fitted intercept.
func (l *LogisticLassoCV) Intercept() float64 {
	return l.intercept_
}

// Lambda returns the cross-validated penalty strength.
func (l *LogisticLassoCV) Lambda() float64 {
	return l.lambda_
}

// LambdaPath returns the descending penalty path that was scanned.
func (l *LogisticLassoCV) LambdaPath() []float64 {
	return append([]float64(nil), l.lambdaPath_...)
}

// DeviancePath returns the mean held-out deviance per path point.
func (l *LogisticLassoCV) DeviancePath() []float64 {
	return append([]float64(nil), l.devPath_...)
}

// SelectedIndices returns the indices of the nonzero coefficients over the
// fixed column order.
func (l *LogisticLassoCV) SelectedIndices() []int {
	return nonzeroIndices(l.coef_)
}

// NumSelected returns the size of the selected set.
func (l *LogisticLassoCV) NumSelected() int {
	return countNonzero(l.coef_)
}

// Converged reports whether the solver met tolerance at the selected
// lambda.
func (l *LogisticLassoCV) Converged() bool {
	return l.converged_
}

// IsFitted reports whether Fit has completed.
func (l *LogisticLassoCV) IsFitted() bool {
	return l.state.IsFitted()
}

// logisticLambdaMax is the smallest penalty that zeroes every coefficient
// at the null model: the maximum absolute gradient of the mean log-loss with
// only the intercept fit.
func logisticLambdaMax(cd *columnData, y []float64) float64 {
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
			dot += col[i] * (y[i] - yMean)
		}
		if a := math.Abs(dot / n); a > maxAbs {
			maxAbs = a
		}
	}
	return maxAbs
}

// fitLogisticPath runs the IRLS-wrapped penalized coordinate descent along a
// descending lambda path with warm starts.
func fitLogisticPath(cd *columnData, y []float64, path []float64, maxIter, maxIRLS int, tol float64,
	onLambda func(k int, beta []float64, intercept float64, nIter int, converged bool)) {
	n := cd.n
	nf := float64(n)

	// Working weights are floored so the quadratic approximation stays
	// well conditioned near p in {0,1}.
	const minWeight = 1e-5

	beta := make([]float64, cd.p)
	intercept := 0.0

	eta := make([]float64, n)    // linear predictor
	w := make([]float64, n)      // IRLS weights p(1-p)
	z := make([]float64, n)      // working response
	resid := make([]float64, n)  // z - eta of the working problem
	denom := make([]float64, cd.p)

	for k, lambda := range path {
		totalIter := 0
		converged := false

		for outer := 0; outer < maxIRLS; outer++ {
			// Reweight around the current linear predictor.
			for i := 0; i < n; i++ {
				eta[i] = intercept
				for j := 0; j < cd.p; j++ {
					if beta[j] != 0 {
						eta[i] += cd.cols[j][i] * beta[j]
					}
				}
				p := sigmoid(eta[i])
				wi := p * (1 - p)
				if wi < minWeight {
					wi = minWeight
				}
				w[i] = wi
				z[i] = eta[i] + (y[i]-p)/wi
				resid[i] = z[i] - eta[i]
			}

			sumW := 0.0
			for i := 0; i < n; i++ {
				sumW += w[i]
			}
			for j := 0; j < cd.p; j++ {
				d := 0.0
				col := cd.cols[j]
				for i := 0; i < n; i++ {
					d += w[i] * col[i] * col[i]
				}
				denom[j] = d / nf
			}

			// Penalized weighted least squares on the working response.
			outerChange := 0.0
			for iter := 0; iter < maxIter; iter++ {
				maxChange := 0.0

				// Intercept update is unpenalized.
				num := 0.0
				for i := 0; i < n; i++ {
					num += w[i] * (resid[i] + intercept)
				}
				newIntercept := num / sumW
				if newIntercept != intercept {
					delta := newIntercept - intercept
					for i := 0; i < n; i++ {
						resid[i] -= delta
					}
					intercept = newIntercept
					if a := math.Abs(delta); a > maxChange {
						maxChange = a
					}
				}

				for j := 0; j < cd.p; j++ {
					if denom[j] == 0 {
						beta[j] = 0
						continue
					}

					col := cd.cols[j]
					dot := 0.0
					for i := 0; i < n; i++ {
						dot += w[i] * col[i] * resid[i]
					}
					rho := dot/nf + denom[j]*beta[j]
					newB := softThreshold(rho, lambda) / denom[j]

					if newB != beta[j] {
						delta := newB - beta[j]
						for i := 0; i < n; i++ {
							resid[i] -= col[i] * delta
						}
						beta[j] = newB
						if a := math.Abs(delta); a > maxChange {
							maxChange = a
						}
					}
				}

				totalIter++
				if maxChange < tol {
					break
				}
				if maxChange > outerChange {
					outerChange = maxChange
				}
			}

			if outerChange < tol {
				converged = true
				break
			}
		}

		onLambda(k, beta, intercept, totalIter, converged)
	}
}

// devianceOn scores a coefficient vector by mean negative log-likelihood on
// the given rows of the original data.
func devianceOn(cd *columnData, y []float64, rows []int, beta []float64, intercept float64) float64 {
	yTrue := mat.NewVecDense(len(rows), nil)
	pPred := mat.NewVecDense(len(rows), nil)
	for k, r := range rows {
		z := intercept
		for j := 0; j < cd.p; j++ {
			if beta[j] != 0 {
				z += cd.cols[j][r] * beta[j]
			}
		}
		yTrue.SetVec(k, y[r])
		pPred.SetVec(k, sigmoid(z))
	}

	// Folds are never empty, so the score cannot error. LogLoss clips the
	// probabilities away from {0,1}.
	dev, _ := metrics.LogLoss(yTrue, pPred)
	return dev
}
