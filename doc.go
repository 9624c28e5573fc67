// Package slm implements the econometric estimation core behind a study of
// sanctions and local labor markets: post-double-selection regularized
// regression for average effects and an X-learner tree-ensemble
// meta-learner for heterogeneous effects.
//
// All estimators take gonum mat.Matrix inputs and return explicit errors;
// data loading, fixed-effect construction and reporting live outside this
// module.
//
// # Quick Start
//
// Estimating an average treatment effect with double selection:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/alina-malkova/sanctions-labor-markets/causal"
//	    "gonum.org/v1/gonum/mat"
//	)
//
//	func main() {
//	    // X: controls, y: outcome, d: treatment exposure (n-by-1 each).
//	    est := causal.NewDoubleSelection(
//	        causal.WithDSClusters(regionIDs),
//	        causal.WithDSRandomState(42),
//	    )
//	    res, err := est.Fit(X, y, d)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Printf("effect %.4f (se %.4f), %d controls selected\n",
//	        res.Coefficient, res.StdError, res.NControlsSelected)
//	}
//
// Heterogeneous effects with the X-learner:
//
//	xl := causal.NewXLearner(causal.WithXLRandomState(42))
//	res, err := xl.Fit(X, y, t)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("mean effect %.4f, p10 %.4f, p90 %.4f\n",
//	    res.Mean, res.Percentiles[10], res.Percentiles[90])
//
// # Packages
//
//   - causal: DoubleSelection and XLearner estimators
//   - linear_model: cross-validated lasso and L1 logistic solvers
//   - inference: OLS with heteroskedasticity- and cluster-robust covariance
//   - ensemble: bagged regression and classification trees
//   - model_selection: k-fold splitting
//   - preprocessing: standardization
//   - metrics: regression and classification scores
//   - pkg/errors, pkg/log: structured errors and logging
//
// # Reproducibility
//
// Every randomized component accepts a seed; identical inputs and seeds
// produce identical estimates, including under parallel tree construction.
//
// # License
//
// Released under the MIT License.
package slm
