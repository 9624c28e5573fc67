package model

import "gonum.org/v1/gonum/mat"

// Fitter is a model that can be trained on a design matrix and target.
type Fitter interface {
	Fit(X, y mat.Matrix) error
}

// Predictor produces point predictions for new rows.
type Predictor interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Model is the interface shared by every supervised estimator in this
// module.
type Model interface {
	Fitter
	Predictor
}

// Transformer learns a data transformation from one matrix and applies it
// to others.
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (*mat.Dense, error)
	FitTransform(X mat.Matrix) (*mat.Dense, error)
}
