// Package linear_model implements the cross-validated L1-penalized solvers
// used for post-double-selection: LassoCV for continuous targets and
// LogisticLassoCV for binary targets. Both scan the same kind of
// log-spaced regularization path with warm starts and share one fold
// assignment across every penalty strength.
package linear_model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/alina-malkova/sanctions-labor-markets/model_selection"
)

const (
	defaultLambdaMinRatio = 1e-3
	defaultTol            = 1e-4
	defaultMaxIter        = 1000

	// Coefficients below this magnitude are treated as exact zeros when
	// reporting the selected set. Coordinate descent produces true zeros,
	// so this only guards accumulated float noise.
	selectionEps = 1e-9
)

// softThreshold is the closed-form solution of the one-dimensional lasso
// subproblem.
func softThreshold(z, gamma float64) float64 {
	switch {
	case z > gamma:
		return z - gamma
	case z < -gamma:
		return z + gamma
	default:
		return 0
	}
}

// columnData holds a design matrix in column-major form for cheap coordinate
// sweeps, plus its per-column means and mean squares.
type columnData struct {
	cols    [][]float64
	means   []float64
	meanSqs []float64 // (1/n) sum of centered squares per column
	n       int
	p       int
}

// newColumnData copies X into column-major storage and precomputes the
// column statistics coordinate descent needs.
func newColumnData(X mat.Matrix) *columnData {
	n, p := X.Dims()
	cd := &columnData{
		cols:    make([][]float64, p),
		means:   make([]float64, p),
		meanSqs: make([]float64, p),
		n:       n,
		p:       p,
	}

	for j := 0; j < p; j++ {
		col := make([]float64, n)
		sum := 0.0
		for i := 0; i < n; i++ {
			col[i] = X.At(i, j)
			sum += col[i]
		}
		cd.cols[j] = col
		cd.means[j] = sum / float64(n)

		sq := 0.0
		for i := 0; i < n; i++ {
			d := col[i] - cd.means[j]
			sq += d * d
		}
		cd.meanSqs[j] = sq / float64(n)
	}

	return cd
}

// subset extracts the given rows into a fresh columnData.
func (cd *columnData) subset(rows []int) *columnData {
	n := len(rows)
	out := &columnData{
		cols:    make([][]float64, cd.p),
		means:   make([]float64, cd.p),
		meanSqs: make([]float64, cd.p),
		n:       n,
		p:       cd.p,
	}

	for j := 0; j < cd.p; j++ {
		col := make([]float64, n)
		sum := 0.0
		for i, r := range rows {
			col[i] = cd.cols[j][r]
			sum += col[i]
		}
		out.cols[j] = col
		out.means[j] = sum / float64(n)

		sq := 0.0
		for i := 0; i < n; i++ {
			d := col[i] - out.means[j]
			sq += d * d
		}
		out.meanSqs[j] = sq / float64(n)
	}

	return out
}

// lambdaPath builds a descending log-spaced path from lambdaMax down to
// lambdaMax*minRatio.
func lambdaPath(lambdaMax float64, nLambdas int, minRatio float64) []float64 {
	if lambdaMax <= 0 {
		// Degenerate target; any positive path zeroes everything.
		lambdaMax = 1.0
	}
	path := make([]float64, nLambdas)
	if nLambdas == 1 {
		path[0] = lambdaMax
		return path
	}

	logMax := math.Log(lambdaMax)
	logMin := math.Log(lambdaMax * minRatio)
	step := (logMax - logMin) / float64(nLambdas-1)
	for k := 0; k < nLambdas; k++ {
		path[k] = math.Exp(logMax - float64(k)*step)
	}
	return path
}

// subsetVec extracts rows of a slice.
func subsetVec(v []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = v[r]
	}
	return out
}

// vecFromMatrix flattens an n-by-1 matrix into a slice.
func vecFromMatrix(y mat.Matrix) []float64 {
	n, _ := y.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = y.At(i, 0)
	}
	return out
}

// countNonzero returns the number of coefficients above the selection
// threshold.
func countNonzero(beta []float64) int {
	count := 0
	for _, b := range beta {
		if math.Abs(b) > selectionEps {
			count++
		}
	}
	return count
}

// nonzeroIndices returns the index set of the selected coefficients over the
// fixed column order.
func nonzeroIndices(beta []float64) []int {
	idx := make([]int, 0, len(beta))
	for j, b := range beta {
		if math.Abs(b) > selectionEps {
			idx = append(idx, j)
		}
	}
	return idx
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

// newSharedFolds builds the seeded, shuffled fold assignment reused across
// the whole regularization path.
func newSharedFolds(k int, seed int64, nSamples int) []model_selection.Fold {
	return model_selection.NewKFold(k, true, seed).Split(nSamples)
}
