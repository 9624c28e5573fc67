package causal

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/alina-malkova/sanctions-labor-markets/ensemble"
	"github.com/alina-malkova/sanctions-labor-markets/pkg/errors"
	"github.com/alina-malkova/sanctions-labor-markets/pkg/log"
)

// XLearner estimates individual-level treatment effects with the X-learner
// meta-algorithm over bagged tree ensembles: per-arm outcome models impute
// counterfactuals, pseudo-effects are regressed per arm, and a propensity
// ensemble blends the two effect surfaces. Only point estimates and their
// empirical distribution are reported; the procedure has no closed-form
// variance.
type XLearner struct {
	nTrees          int
	outcomeDepth    int
	effectDepth     int
	propensityDepth int
	minSamplesLeaf  int
	randomState     int64
	featureNames    []string
}

// XLearnerOption is a functional option for XLearner.
type XLearnerOption func(*XLearner)

// NewXLearner creates an XLearner with 100 trees per ensemble, depth 10
// outcome models and depth 8 effect and propensity models.
func NewXLearner(opts ...XLearnerOption) *XLearner {
	xl := &XLearner{
		nTrees:          100,
		outcomeDepth:    10,
		effectDepth:     8,
		propensityDepth: 8,
		minSamplesLeaf:  1,
		randomState:     0,
	}

	for _, opt := range opts {
		opt(xl)
	}

	return xl
}

// WithXLTrees sets the number of trees per ensemble.
func WithXLTrees(n int) XLearnerOption {
	return func(xl *XLearner) {
		if n > 0 {
			xl.nTrees = n
		}
	}
}

// WithXLOutcomeDepth caps the outcome-model tree depth.
func WithXLOutcomeDepth(depth int) XLearnerOption {
	return func(xl *XLearner) {
		if depth > 0 {
			xl.outcomeDepth = depth
		}
	}
}

// WithXLEffectDepth caps the effect-model and propensity tree depth.
func WithXLEffectDepth(depth int) XLearnerOption {
	return func(xl *XLearner) {
		if depth > 0 {
			xl.effectDepth = depth
			xl.propensityDepth = depth
		}
	}
}

// WithXLMinSamplesLeaf sets the minimum rows per leaf in every ensemble.
func WithXLMinSamplesLeaf(n int) XLearnerOption {
	return func(xl *XLearner) {
		if n >= 1 {
			xl.minSamplesLeaf = n
		}
	}
}

// WithXLRandomState seeds every ensemble; each of the five models derives
// its own stream so runs are reproducible end to end.
func WithXLRandomState(seed int64) XLearnerOption {
	return func(xl *XLearner) {
		xl.randomState = seed
	}
}

// WithXLFeatureNames attaches display names to the covariate columns for
// the importance table.
func WithXLFeatureNames(names []string) XLearnerOption {
	return func(xl *XLearner) {
		xl.featureNames = names
	}
}

// EffectSummary is the mean/SD summary of effects over a row subset.
type EffectSummary struct {
	Mean float64
	Std  float64
	N    int
}

// XLearnerResult holds per-row effect estimates and their empirical
// distribution statistics.
type XLearnerResult struct {
	// Effects is aligned with the input rows.
	Effects []float64

	Mean   float64
	Std    float64
	Median float64

	// Percentiles maps {10, 25, 50, 75, 90} to effect quantiles.
	Percentiles map[int]float64

	// FeatureImportance averages normalized impurity-reduction importances
	// over the two effect models.
	FeatureImportance map[string]float64

	NObservations int
	NTreated      int
	NControl      int
}

// SubgroupSummary returns mean/SD/count of the effect over the rows where
// mask is true, for arbitrary partitions (age bands, periods, ...).
func (r *XLearnerResult) SubgroupSummary(mask []bool) (EffectSummary, error) {
	if len(mask) != len(r.Effects) {
		return EffectSummary{}, errors.NewDimensionError("XLearnerResult.SubgroupSummary", len(r.Effects), len(mask), 0)
	}

	sub := make([]float64, 0, len(mask))
	for i, keep := range mask {
		if keep {
			sub = append(sub, r.Effects[i])
		}
	}
	if len(sub) == 0 {
		return EffectSummary{}, errors.NewValueError("XLearnerResult.SubgroupSummary", "empty subgroup")
	}

	return EffectSummary{
		Mean: stat.Mean(sub, nil),
		Std:  stat.PopStdDev(sub, nil),
		N:    len(sub),
	}, nil
}

// Fit runs the five stages in order and returns per-row effect estimates.
// X holds the heterogeneity covariates, y the outcome and t the binary
// {0,1} treatment indicator, all length-aligned.
func (xl *XLearner) Fit(X, y, t mat.Matrix) (*XLearnerResult, error) {
	const op = "XLearner.Fit"

	if err := validateInputs(op, X, y, t); err != nil {
		return nil, err
	}
	if !isBinaryVector(t) {
		return nil, errors.NewValidationError("t", "treatment indicator must be binary {0,1}", nil)
	}

	n, p := X.Dims()
	if xl.featureNames != nil && len(xl.featureNames) != p {
		return nil, errors.NewDimensionError(op, p, len(xl.featureNames), 1)
	}

	var controlRows, treatedRows []int
	for i := 0; i < n; i++ {
		if t.At(i, 0) == 1 {
			treatedRows = append(treatedRows, i)
		} else {
			controlRows = append(controlRows, i)
		}
	}

	// Both arms are required before any model is fit.
	if len(treatedRows) == 0 {
		return nil, errors.NewEmptyGroupError(op, "treated")
	}
	if len(controlRows) == 0 {
		return nil, errors.NewEmptyGroupError(op, "control")
	}

	logger := log.With("XLearner")
	logger.Debug().
		Int(log.SamplesKey, n).
		Int(log.FeaturesKey, p).
		Int(log.TreesKey, xl.nTrees).
		Int64(log.SeedKey, xl.randomState).
		Int("treated", len(treatedRows)).
		Int("control", len(controlRows)).
		Msg("starting x-learner fit")

	XControl := subsetRowsDense(X, controlRows)
	XTreated := subsetRowsDense(X, treatedRows)
	yControl := subsetVecDense(y, controlRows)
	yTreated := subsetVecDense(y, treatedRows)

	// Stage 1: per-arm outcome models.
	mu0 := ensemble.NewForestRegressor(
		ensemble.WithForestTrees(xl.nTrees),
		ensemble.WithForestMaxDepth(xl.outcomeDepth),
		ensemble.WithForestMinSamplesLeaf(xl.minSamplesLeaf),
		ensemble.WithForestRandomState(xl.randomState),
	)
	if err := mu0.Fit(XControl, yControl); err != nil {
		return nil, errors.Wrap(err, "control outcome model")
	}

	mu1 := ensemble.NewForestRegressor(
		ensemble.WithForestTrees(xl.nTrees),
		ensemble.WithForestMaxDepth(xl.outcomeDepth),
		ensemble.WithForestMinSamplesLeaf(xl.minSamplesLeaf),
		ensemble.WithForestRandomState(xl.randomState+1),
	)
	if err := mu1.Fit(XTreated, yTreated); err != nil {
		return nil, errors.Wrap(err, "treated outcome model")
	}

	logger.Debug().Str(log.StageKey, "outcome_models").Msg("outcome models fitted")

	// Stage 2: imputed pseudo-effects. Control rows impute the treated
	// counterfactual; treated rows impute the control counterfactual.
	mu1OnControl, err := mu1.Predict(XControl)
	if err != nil {
		return nil, errors.Wrap(err, "imputing treated counterfactuals")
	}
	mu0OnTreated, err := mu0.Predict(XTreated)
	if err != nil {
		return nil, errors.Wrap(err, "imputing control counterfactuals")
	}

	pseudoControl := mat.NewDense(len(controlRows), 1, nil)
	for i := range controlRows {
		pseudoControl.Set(i, 0, mu1OnControl.At(i, 0)-yControl.At(i, 0))
	}
	pseudoTreated := mat.NewDense(len(treatedRows), 1, nil)
	for i := range treatedRows {
		pseudoTreated.Set(i, 0, yTreated.At(i, 0)-mu0OnTreated.At(i, 0))
	}

	logger.Debug().Str(log.StageKey, "pseudo_outcomes").Msg("pseudo-effects constructed")

	// Stage 3: per-arm effect models on the pseudo-effects.
	tau0 := ensemble.NewForestRegressor(
		ensemble.WithForestTrees(xl.nTrees),
		ensemble.WithForestMaxDepth(xl.effectDepth),
		ensemble.WithForestMinSamplesLeaf(xl.minSamplesLeaf),
		ensemble.WithForestRandomState(xl.randomState+2),
	)
	if err := tau0.Fit(XControl, pseudoControl); err != nil {
		return nil, errors.Wrap(err, "control effect model")
	}

	tau1 := ensemble.NewForestRegressor(
		ensemble.WithForestTrees(xl.nTrees),
		ensemble.WithForestMaxDepth(xl.effectDepth),
		ensemble.WithForestMinSamplesLeaf(xl.minSamplesLeaf),
		ensemble.WithForestRandomState(xl.randomState+3),
	)
	if err := tau1.Fit(XTreated, pseudoTreated); err != nil {
		return nil, errors.Wrap(err, "treated effect model")
	}

	logger.Debug().Str(log.StageKey, "effect_models").Msg("effect models fitted")

	// Stage 4: propensity model over all rows.
	propensity := ensemble.NewForestClassifier(
		ensemble.WithForestTrees(xl.nTrees),
		ensemble.WithForestMaxDepth(xl.propensityDepth),
		ensemble.WithForestMinSamplesLeaf(xl.minSamplesLeaf),
		ensemble.WithForestRandomState(xl.randomState+4),
	)
	if err := propensity.Fit(X, t); err != nil {
		return nil, errors.Wrap(err, "propensity model")
	}

	logger.Debug().Str(log.StageKey, "propensity").Msg("propensity model fitted")

	// Stage 5: blend the two effect surfaces at every row. The weights
	// e(x) and 1-e(x) sum to one, so each estimate is a convex combination
	// of the two model predictions.
	tau0Pred, err := tau0.Predict(X)
	if err != nil {
		return nil, errors.Wrap(err, "control effect predictions")
	}
	tau1Pred, err := tau1.Predict(X)
	if err != nil {
		return nil, errors.Wrap(err, "treated effect predictions")
	}
	ePred, err := propensity.PredictProba(X)
	if err != nil {
		return nil, errors.Wrap(err, "propensity predictions")
	}

	effects := make([]float64, n)
	for i := 0; i < n; i++ {
		e := ePred.At(i, 0)
		effects[i] = e*tau0Pred.At(i, 0) + (1-e)*tau1Pred.At(i, 0)
	}

	result := &XLearnerResult{
		Effects:       effects,
		Mean:          stat.Mean(effects, nil),
		Std:           stat.PopStdDev(effects, nil),
		Percentiles:   effectPercentiles(effects),
		NObservations: n,
		NTreated:      len(treatedRows),
		NControl:      len(controlRows),
	}
	result.Median = result.Percentiles[50]

	// Importance for heterogeneity comes from the two effect models, not
	// the outcome or propensity fits.
	imp0 := tau0.GetFeatureImportances()
	imp1 := tau1.GetFeatureImportances()
	result.FeatureImportance = make(map[string]float64, p)
	for j := 0; j < p; j++ {
		result.FeatureImportance[columnName(xl.featureNames, j)] = (imp0[j] + imp1[j]) / 2
	}

	logger.Info().
		Str(log.StageKey, "combination").
		Float64("mean_effect", result.Mean).
		Float64("std_effect", result.Std).
		Msg("x-learner fit done")

	return result, nil
}

// effectPercentiles computes the {10,25,50,75,90} quantiles of the effect
// distribution.
func effectPercentiles(effects []float64) map[int]float64 {
	sorted := append([]float64(nil), effects...)
	sort.Float64s(sorted)

	out := make(map[int]float64, 5)
	for _, pct := range []int{10, 25, 50, 75, 90} {
		out[pct] = stat.Quantile(float64(pct)/100, stat.Empirical, sorted, nil)
	}
	return out
}
