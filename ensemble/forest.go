package ensemble

import (
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/alina-malkova/sanctions-labor-markets/core/model"
	"github.com/alina-malkova/sanctions-labor-markets/pkg/errors"
)

// forestConfig collects the ensemble-level settings shared by both forest
// kinds.
type forestConfig struct {
	nEstimators int
	randomState int64
	tree        treeConfig
}

func defaultForestConfig() forestConfig {
	return forestConfig{
		nEstimators: 100,
		randomState: 0,
		tree:        defaultTreeConfig(),
	}
}

// ForestOption is a functional option shared by both forest kinds.
type ForestOption func(*forestConfig)

// WithForestTrees sets the number of trees.
func WithForestTrees(n int) ForestOption {
	return func(c *forestConfig) {
		if n > 0 {
			c.nEstimators = n
		}
	}
}

// WithForestMaxDepth caps member tree depth.
func WithForestMaxDepth(depth int) ForestOption {
	return func(c *forestConfig) {
		if depth > 0 {
			c.tree.maxDepth = depth
		}
	}
}

// WithForestMinSamplesLeaf sets the minimum rows in each leaf.
func WithForestMinSamplesLeaf(n int) ForestOption {
	return func(c *forestConfig) {
		if n >= 1 {
			c.tree.minSamplesLeaf = n
		}
	}
}

// WithForestMinSamplesSplit sets the minimum node size eligible for a split.
func WithForestMinSamplesSplit(n int) ForestOption {
	return func(c *forestConfig) {
		if n >= 2 {
			c.tree.minSamplesSplit = n
		}
	}
}

// WithForestMaxFeatures sets the candidate features per node; 0 selects the
// task default.
func WithForestMaxFeatures(n int) ForestOption {
	return func(c *forestConfig) {
		if n >= 0 {
			c.tree.maxFeatures = n
		}
	}
}

// WithForestRandomState seeds bootstrap draws and feature subsampling.
// Tree b derives its own generator from (seed, b), so parallel fits never
// share a generator and a fixed seed reproduces identical trees.
func WithForestRandomState(seed int64) ForestOption {
	return func(c *forestConfig) {
		c.randomState = seed
	}
}

// forest is the shared bagging machinery.
type forest struct {
	cfg            forestConfig
	classification bool
	trees          []*tree
	nFeatures      int
}

// fit trains cfg.nEstimators trees on independent bootstrap samples. Tree
// construction is embarrassingly parallel: the only shared input is the
// read-only column store.
func (f *forest) fit(cols *columns, y []float64) error {
	f.nFeatures = cols.p
	f.trees = make([]*tree, f.cfg.nEstimators)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())

	for b := 0; b < f.cfg.nEstimators; b++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(f.cfg.randomState), uint64(b)))

			idx := make([]int, cols.n)
			for i := range idx {
				idx[i] = rng.IntN(cols.n)
			}

			tr := &tree{cfg: f.cfg.tree, classification: f.classification}
			tr.fit(cols, y, idx, rng)
			f.trees[b] = tr
			return nil
		})
	}

	return g.Wait()
}

// predict averages member trees on one row.
func (f *forest) predict(row []float64) float64 {
	sum := 0.0
	for _, tr := range f.trees {
		sum += tr.predictRow(row)
	}
	return sum / float64(len(f.trees))
}

// featureImportances averages normalized per-tree importances.
func (f *forest) featureImportances() []float64 {
	avg := make([]float64, f.nFeatures)
	for _, tr := range f.trees {
		norm := normalizeImportances(tr.importances)
		for j, v := range norm {
			avg[j] += v
		}
	}
	for j := range avg {
		avg[j] /= float64(len(f.trees))
	}
	return avg
}

func (f *forest) predictMatrix(X mat.Matrix) *mat.Dense {
	n, p := X.Dims()
	out := mat.NewDense(n, 1, nil)
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			row[j] = X.At(i, j)
		}
		out.Set(i, 0, f.predict(row))
	}
	return out
}

var (
	_ model.Model = (*ForestRegressor)(nil)
	_ model.Model = (*ForestClassifier)(nil)
)

// ForestRegressor is a bagged ensemble of regression trees; prediction is
// the unweighted mean across members.
type ForestRegressor struct {
	state  *model.StateManager
	forest forest
}

// NewForestRegressor creates a ForestRegressor with 100 trees, depth 10 and
// p/3 candidate features per node by default.
func NewForestRegressor(opts ...ForestOption) *ForestRegressor {
	cfg := defaultForestConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ForestRegressor{
		state:  model.NewStateManager(),
		forest: forest{cfg: cfg},
	}
}

// Fit trains the ensemble. y must be an n-by-1 matrix aligned with X.
func (fr *ForestRegressor) Fit(X, y mat.Matrix) error {
	n, p := X.Dims()
	yRows, yCols := y.Dims()
	if n == 0 || p == 0 {
		return errors.NewModelError("ForestRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != n {
		return errors.NewDimensionError("ForestRegressor.Fit", n, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("ForestRegressor.Fit", "y must be a column vector")
	}

	cols := newColumns(X)
	yv := make([]float64, n)
	for i := 0; i < n; i++ {
		yv[i] = y.At(i, 0)
	}

	if err := fr.forest.fit(cols, yv); err != nil {
		return errors.NewModelError("ForestRegressor.Fit", "tree construction failed", err)
	}

	fr.state.SetDimensions(p, n)
	fr.state.SetFitted()
	return nil
}

// Predict returns the mean member prediction as an n-by-1 matrix.
func (fr *ForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !fr.state.IsFitted() {
		return nil, errors.NewNotFittedError("ForestRegressor", "Predict")
	}

	_, p := X.Dims()
	nFeatures, _ := fr.state.GetDimensions()
	if p != nFeatures {
		return nil, errors.NewDimensionError("ForestRegressor.Predict", nFeatures, p, 1)
	}

	return fr.forest.predictMatrix(X), nil
}

// GetFeatureImportances returns impurity-decrease importances averaged over
// member trees; they sum to 1 when any split occurred.
func (fr *ForestRegressor) GetFeatureImportances() []float64 {
	return fr.forest.featureImportances()
}

// NumTrees returns the ensemble size.
func (fr *ForestRegressor) NumTrees() int {
	return len(fr.forest.trees)
}

// IsFitted reports whether Fit has completed.
func (fr *ForestRegressor) IsFitted() bool {
	return fr.state.IsFitted()
}

// ForestClassifier is a bagged ensemble of classification trees for binary
// {0,1} targets; PredictProba averages leaf class-1 fractions across
// members.
type ForestClassifier struct {
	state  *model.StateManager
	forest forest
}

// NewForestClassifier creates a ForestClassifier with 100 trees, depth 10
// and sqrt(p) candidate features per node by default.
func NewForestClassifier(opts ...ForestOption) *ForestClassifier {
	cfg := defaultForestConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ForestClassifier{
		state:  model.NewStateManager(),
		forest: forest{cfg: cfg, classification: true},
	}
}

// Fit trains the ensemble. y must be an n-by-1 matrix of {0,1} labels.
func (fc *ForestClassifier) Fit(X, y mat.Matrix) error {
	n, p := X.Dims()
	yRows, yCols := y.Dims()
	if n == 0 || p == 0 {
		return errors.NewModelError("ForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != n {
		return errors.NewDimensionError("ForestClassifier.Fit", n, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("ForestClassifier.Fit", "y must be a column vector")
	}

	yv := make([]float64, n)
	for i := 0; i < n; i++ {
		yv[i] = y.At(i, 0)
		if yv[i] != 0 && yv[i] != 1 {
			return errors.NewValidationError("y", "labels must be binary {0,1}",
				map[string]interface{}{"row": i, "value": yv[i]})
		}
	}

	cols := newColumns(X)
	if err := fc.forest.fit(cols, yv); err != nil {
		return errors.NewModelError("ForestClassifier.Fit", "tree construction failed", err)
	}

	fc.state.SetDimensions(p, n)
	fc.state.SetFitted()
	return nil
}

// PredictProba returns P(y=1|x) as an n-by-1 matrix.
func (fc *ForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if !fc.state.IsFitted() {
		return nil, errors.NewNotFittedError("ForestClassifier", "PredictProba")
	}

	_, p := X.Dims()
	nFeatures, _ := fc.state.GetDimensions()
	if p != nFeatures {
		return nil, errors.NewDimensionError("ForestClassifier.PredictProba", nFeatures, p, 1)
	}

	return fc.forest.predictMatrix(X), nil
}

// Predict returns hard {0,1} labels at the 0.5 threshold.
func (fc *ForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	probas, err := fc.PredictProba(X)
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

// GetFeatureImportances returns impurity-decrease importances averaged over
// member trees.
func (fc *ForestClassifier) GetFeatureImportances() []float64 {
	return fc.forest.featureImportances()
}

// NumTrees returns the ensemble size.
func (fc *ForestClassifier) NumTrees() int {
	return len(fc.forest.trees)
}

// IsFitted reports whether Fit has completed.
func (fc *ForestClassifier) IsFitted() bool {
	return fc.state.IsFitted()
}
