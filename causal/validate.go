// Package causal implements the two treatment-effect estimators: post-double
// -selection penalized regression (DoubleSelection) and the X-learner
// heterogeneous-effect meta-learner (XLearner). Both consume an
// already-assembled design matrix; all input-contract violations are caught
// here before any fitting begins.
package causal

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/alina-malkova/sanctions-labor-markets/pkg/errors"
)

// validateInputs enforces the call contract shared by both estimators:
// length-aligned vectors, finite values everywhere, no zero-variance
// candidate columns and no column that merely duplicates the treatment.
func validateInputs(op string, X, y, d mat.Matrix) error {
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return errors.NewModelError(op, "empty design matrix", errors.ErrEmptyData)
	}

	yRows, yCols := y.Dims()
	if yCols != 1 {
		return errors.NewValueError(op, "outcome must be a column vector")
	}
	if yRows != n {
		return errors.NewDimensionError(op, n, yRows, 0)
	}

	dRows, dCols := d.Dims()
	if dCols != 1 {
		return errors.NewValueError(op, "treatment must be a column vector")
	}
	if dRows != n {
		return errors.NewDimensionError(op, n, dRows, 0)
	}

	for i := 0; i < n; i++ {
		if !isFinite(y.At(i, 0)) {
			return errors.NewValidationError("y", "missing or non-finite value", map[string]interface{}{"row": i})
		}
		if !isFinite(d.At(i, 0)) {
			return errors.NewValidationError("d", "missing or non-finite value", map[string]interface{}{"row": i})
		}
	}

	for j := 0; j < p; j++ {
		first := X.At(0, j)
		constant := true
		sameAsTreatment := true

		for i := 0; i < n; i++ {
			v := X.At(i, j)
			if !isFinite(v) {
				return errors.NewValidationError("X", "missing or non-finite value",
					map[string]interface{}{"row": i, "column": j})
			}
			if v != first {
				constant = false
			}
			if v != d.At(i, 0) {
				sameAsTreatment = false
			}
		}

		if constant {
			return errors.NewValidationError("X", "zero-variance column must be excluded before fitting",
				map[string]interface{}{"column": j})
		}
		if sameAsTreatment {
			return errors.NewValidationError("X", "column duplicates the treatment vector",
				map[string]interface{}{"column": j})
		}
	}

	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// isBinaryVector reports whether every entry of an n-by-1 matrix is 0 or 1.
func isBinaryVector(v mat.Matrix) bool {
	n, _ := v.Dims()
	for i := 0; i < n; i++ {
		x := v.At(i, 0)
		if x != 0 && x != 1 {
			return false
		}
	}
	return true
}

// subsetRowsDense copies the given rows of X into a fresh matrix.
func subsetRowsDense(X mat.Matrix, rows []int) *mat.Dense {
	_, p := X.Dims()
	out := mat.NewDense(len(rows), p, nil)
	for i, r := range rows {
		for j := 0; j < p; j++ {
			out.Set(i, j, X.At(r, j))
		}
	}
	return out
}

// subsetVecDense copies the given rows of an n-by-1 matrix into a fresh
// column vector.
func subsetVecDense(v mat.Matrix, rows []int) *mat.Dense {
	out := mat.NewDense(len(rows), 1, nil)
	for i, r := range rows {
		out.Set(i, 0, v.At(r, 0))
	}
	return out
}

// columnName resolves a display name for covariate j; unnamed columns are
// reported as x0, x1, ... in fixed column order.
func columnName(names []string, j int) string {
	if j < len(names) {
		return names[j]
	}
	return "x" + strconv.Itoa(j)
}
