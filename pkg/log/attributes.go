// Package log defines standard attribute keys for estimation runs.
//
// Using these keys consistently makes runs of the two estimators easy to
// filter and compare in log output. Keys follow a hierarchical naming
// convention ("model.name", "data.samples") for structured analysis.
package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type.
	// Examples: "LassoCV", "DoubleSelection", "XLearner"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform"
	OperationKey = "ml.operation"

	// StageKey marks a stage inside a multi-stage estimator.
	// Examples: "outcome_selection", "treatment_selection", "final_ols",
	// "outcome_models", "pseudo_outcomes", "effect_models", "propensity",
	// "combination"
	StageKey = "ml.stage"
)

// Data shape and characteristics.
const (
	// SamplesKey is the number of observation rows being processed.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of covariate columns.
	FeaturesKey = "data.features"

	// ClustersKey is the number of distinct cluster groups, when clustered
	// covariance is requested.
	ClustersKey = "data.clusters"
)

// Solver and model settings.
const (
	// LambdaKey is the selected penalty strength after cross-validation.
	LambdaKey = "solver.lambda"

	// FoldsKey is the number of cross-validation folds.
	FoldsKey = "solver.folds"

	// SelectedKey is the number of covariates with nonzero coefficients.
	SelectedKey = "solver.selected"

	// TreesKey is the number of trees in an ensemble.
	TreesKey = "ensemble.trees"

	// MaxDepthKey is the depth cap for ensemble member trees.
	MaxDepthKey = "ensemble.max_depth"

	// SeedKey is the random seed used for the run.
	SeedKey = "ml.seed"
)
