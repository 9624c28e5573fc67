// Package inference provides the final-stage ordinary least squares fit and
// the robust covariance estimators used to report treatment coefficients:
// heteroskedasticity-robust (HC1) by default and cluster-robust when a
// group identifier is supplied. Clustering changes standard errors only,
// never the point estimates.
package inference

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/alina-malkova/sanctions-labor-markets/core/model"
	"github.com/alina-malkova/sanctions-labor-markets/pkg/errors"
)

// LeastSquares fits ordinary least squares via the normal equations with an
// explicit intercept column, retaining the pieces the sandwich estimators
// need: the augmented design, residuals and (X'X)^{-1}.
type LeastSquares struct {
	state *model.StateManager

	// Coef holds [intercept, coefficients...] in design order.
	Coef []float64

	design    *mat.Dense // n x k augmented design [1, X]
	residuals []float64
	xtxInv    *mat.Dense
	n         int
	k         int
}

// NewLeastSquares creates an unfitted LeastSquares.
func NewLeastSquares() *LeastSquares {
	return &LeastSquares{state: model.NewStateManager()}
}

// Fit solves the normal equations for y on [1, X]. y must be an n-by-1
// matrix aligned with the rows of X.
func (ls *LeastSquares) Fit(X, y mat.Matrix) error {
	n, p := X.Dims()
	yRows, yCols := y.Dims()

	if n == 0 {
		return errors.NewModelError("LeastSquares.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != n {
		return errors.NewDimensionError("LeastSquares.Fit", n, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("LeastSquares.Fit", "y must be a column vector")
	}

	k := p + 1
	design := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1.0)
		for j := 0; j < p; j++ {
			design.Set(i, j+1, X.At(i, j))
		}
	}

	var xt mat.Dense
	xt.CloneFrom(design.T())

	var xtx mat.Dense
	xtx.Mul(&xt, design)

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		return errors.NewModelError("LeastSquares.Fit", "singular design", errors.ErrSingularMatrix)
	}

	yVec := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		yVec.SetVec(i, y.At(i, 0))
	}

	var xty mat.VecDense
	xty.MulVec(&xt, yVec)

	coef := mat.NewVecDense(k, nil)
	coef.MulVec(&xtxInv, &xty)

	ls.Coef = make([]float64, k)
	for j := 0; j < k; j++ {
		ls.Coef[j] = coef.AtVec(j)
	}

	ls.residuals = make([]float64, n)
	for i := 0; i < n; i++ {
		pred := 0.0
		for j := 0; j < k; j++ {
			pred += design.At(i, j) * ls.Coef[j]
		}
		ls.residuals[i] = y.At(i, 0) - pred
	}

	ls.design = design
	ls.xtxInv = &xtxInv
	ls.n = n
	ls.k = k

	ls.state.SetDimensions(p, n)
	ls.state.SetFitted()
	return nil
}

// Residuals returns the fitted residuals.
func (ls *LeastSquares) Residuals() []float64 {
	return append([]float64(nil), ls.residuals...)
}

// CovarianceHC1 computes the heteroskedasticity-robust coefficient
// covariance with the HC1 small-sample scaling n/(n-k).
func (ls *LeastSquares) CovarianceHC1() (*mat.Dense, error) {
	if !ls.state.IsFitted() {
		return nil, errors.NewNotFittedError("LeastSquares", "CovarianceHC1")
	}

	meat := mat.NewDense(ls.k, ls.k, nil)
	row := make([]float64, ls.k)
	for i := 0; i < ls.n; i++ {
		e2 := ls.residuals[i] * ls.residuals[i]
		for j := 0; j < ls.k; j++ {
			row[j] = ls.design.At(i, j)
		}
		for a := 0; a < ls.k; a++ {
			for b := 0; b < ls.k; b++ {
				meat.Set(a, b, meat.At(a, b)+e2*row[a]*row[b])
			}
		}
	}

	scale := float64(ls.n) / float64(ls.n-ls.k)
	return ls.sandwich(meat, scale), nil
}

// CovarianceCluster computes the cluster-robust coefficient covariance from
// the outer products of cluster-level score sums, with the usual
// G/(G-1) * (n-1)/(n-k) finite-sample correction. groups must align with
// the fitted rows.
func (ls *LeastSquares) CovarianceCluster(groups []int) (*mat.Dense, error) {
	if !ls.state.IsFitted() {
		return nil, errors.NewNotFittedError("LeastSquares", "CovarianceCluster")
	}
	if len(groups) != ls.n {
		return nil, errors.NewDimensionError("LeastSquares.CovarianceCluster", ls.n, len(groups), 0)
	}

	// Score sum X_g' e_g per cluster.
	scores := make(map[int][]float64)
	for i := 0; i < ls.n; i++ {
		s, ok := scores[groups[i]]
		if !ok {
			s = make([]float64, ls.k)
			scores[groups[i]] = s
		}
		for j := 0; j < ls.k; j++ {
			s[j] += ls.design.At(i, j) * ls.residuals[i]
		}
	}

	nGroups := len(scores)
	if nGroups < 2 {
		return nil, errors.NewValidationError("groups", "cluster covariance requires at least 2 clusters", nGroups)
	}

	meat := mat.NewDense(ls.k, ls.k, nil)
	for _, s := range scores {
		for a := 0; a < ls.k; a++ {
			for b := 0; b < ls.k; b++ {
				meat.Set(a, b, meat.At(a, b)+s[a]*s[b])
			}
		}
	}

	g := float64(nGroups)
	scale := g / (g - 1) * float64(ls.n-1) / float64(ls.n-ls.k)
	return ls.sandwich(meat, scale), nil
}

// sandwich computes scale * (X'X)^{-1} M (X'X)^{-1}.
func (ls *LeastSquares) sandwich(meat *mat.Dense, scale float64) *mat.Dense {
	var tmp, cov mat.Dense
	tmp.Mul(ls.xtxInv, meat)
	cov.Mul(&tmp, ls.xtxInv)
	cov.Scale(scale, &cov)
	return &cov
}

// CoefficientStat summarizes one coefficient under a given covariance.
type CoefficientStat struct {
	Estimate float64
	StdError float64
	TStat    float64
	PValue   float64
	CILower  float64
	CIUpper  float64
}

// Summary extracts the inference summary for coefficient j (0 is the
// intercept) from a coefficient covariance matrix. The p-value uses the
// two-sided normal approximation and the interval is estimate +/- 1.96 SE.
func (ls *LeastSquares) Summary(j int, cov mat.Matrix) (CoefficientStat, error) {
	if !ls.state.IsFitted() {
		return CoefficientStat{}, errors.NewNotFittedError("LeastSquares", "Summary")
	}
	if j < 0 || j >= ls.k {
		return CoefficientStat{}, errors.NewValueError("LeastSquares.Summary", "coefficient index out of range")
	}

	variance := cov.At(j, j)
	if variance < 0 || math.IsNaN(variance) {
		return CoefficientStat{}, errors.NewNumericalInstabilityError("LeastSquares.Summary", []float64{variance}, 0)
	}

	se := math.Sqrt(variance)
	est := ls.Coef[j]

	t := 0.0
	p := 1.0
	if se > 0 {
		t = est / se
		norm := distuv.Normal{Mu: 0, Sigma: 1}
		p = 2 * norm.Survival(math.Abs(t))
	}

	return CoefficientStat{
		Estimate: est,
		StdError: se,
		TStat:    t,
		PValue:   p,
		CILower:  est - 1.96*se,
		CIUpper:  est + 1.96*se,
	}, nil
}
