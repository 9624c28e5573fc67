// Package ensemble implements bagged decision-tree ensembles for regression
// and binary classification. Trees are grown on bootstrap samples with a
// fresh random feature subset at every node and are immutable once built;
// ensemble prediction averages member trees.
package ensemble

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/alina-malkova/sanctions-labor-markets/core/model"
	"github.com/alina-malkova/sanctions-labor-markets/pkg/errors"
)

// treeNode is one node of a fitted tree. Leaves carry the mean target
// (regression) or the class-1 fraction (classification).
type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
	leaf      bool
}

// splitCandidate is the best split found for a node.
type splitCandidate struct {
	feature   int
	threshold float64
	gain      float64 // weighted impurity decrease, in sample units
	leftIdx   []int
	rightIdx  []int
}

// treeConfig collects the growth limits shared by both tree kinds.
type treeConfig struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 means choose by task default at fit time
}

func defaultTreeConfig() treeConfig {
	return treeConfig{
		maxDepth:        10,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     0,
	}
}

// columns holds a design matrix in column-major form. Forests build it once
// and share it read-only across concurrently fitted trees.
type columns struct {
	data [][]float64
	n    int
	p    int
}

func newColumns(X mat.Matrix) *columns {
	n, p := X.Dims()
	c := &columns{data: make([][]float64, p), n: n, p: p}
	for j := 0; j < p; j++ {
		col := make([]float64, n)
		for i := 0; i < n; i++ {
			col[i] = X.At(i, j)
		}
		c.data[j] = col
	}
	return c
}

// tree is the shared recursive CART fitter. classification selects Gini
// impurity on {0,1} targets instead of variance.
type tree struct {
	cfg            treeConfig
	classification bool
	root           *treeNode
	importances    []float64 // unnormalized impurity decrease per feature
	nFitRows       int
}

// fit grows the tree on the given row indices (a bootstrap sample; indices
// may repeat). rng drives the per-node feature subsets.
func (t *tree) fit(cols *columns, y []float64, idx []int, rng *rand.Rand) {
	t.importances = make([]float64, cols.p)
	t.nFitRows = len(idx)

	maxFeatures := t.cfg.maxFeatures
	if maxFeatures <= 0 || maxFeatures > cols.p {
		if t.classification {
			maxFeatures = int(math.Round(math.Sqrt(float64(cols.p))))
		} else {
			maxFeatures = cols.p / 3
		}
		if maxFeatures < 1 {
			maxFeatures = 1
		}
	}

	t.root = t.grow(cols, y, idx, 0, maxFeatures, rng)
}

func (t *tree) grow(cols *columns, y []float64, idx []int, depth, maxFeatures int, rng *rand.Rand) *treeNode {
	sum, sumSq := 0.0, 0.0
	for _, i := range idx {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	n := float64(len(idx))
	mean := sum / n

	node := &treeNode{value: mean, leaf: true}

	if depth >= t.cfg.maxDepth || len(idx) < t.cfg.minSamplesSplit {
		return node
	}

	imp := t.impurity(sum, sumSq, n)
	if imp <= 0 {
		return node
	}

	best := t.bestSplit(cols, y, idx, imp, maxFeatures, rng)
	if best == nil {
		return node
	}

	t.importances[best.feature] += best.gain / float64(t.nFitRows)

	node.leaf = false
	node.feature = best.feature
	node.threshold = best.threshold
	node.left = t.grow(cols, y, best.leftIdx, depth+1, maxFeatures, rng)
	node.right = t.grow(cols, y, best.rightIdx, depth+1, maxFeatures, rng)
	return node
}

// impurity is variance for regression and Gini for binary classification,
// both computable from the running sums.
func (t *tree) impurity(sum, sumSq, n float64) float64 {
	mean := sum / n
	if t.classification {
		return 2 * mean * (1 - mean)
	}
	v := sumSq/n - mean*mean
	if v < 0 {
		v = 0
	}
	return v
}

// bestSplit scans a random feature subset with a sort + prefix-sum sweep and
// returns the split maximizing weighted impurity decrease, or nil when no
// admissible split improves on the parent.
func (t *tree) bestSplit(cols *columns, y []float64, idx []int, parentImp float64, maxFeatures int, rng *rand.Rand) *splitCandidate {
	n := len(idx)

	features := sampleFeatures(cols.p, maxFeatures, rng)

	sorted := make([]int, n)
	var best *splitCandidate

	for _, j := range features {
		col := cols.data[j]
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool { return col[sorted[a]] < col[sorted[b]] })

		// Left-side running sums over the sorted order.
		sumL, sumSqL := 0.0, 0.0
		sumT, sumSqT := 0.0, 0.0
		for _, i := range sorted {
			sumT += y[i]
			sumSqT += y[i] * y[i]
		}

		for k := 0; k < n-1; k++ {
			yi := y[sorted[k]]
			sumL += yi
			sumSqL += yi * yi

			// Only split between distinct feature values.
			if col[sorted[k]] == col[sorted[k+1]] {
				continue
			}

			nL := k + 1
			nR := n - nL
			if nL < t.cfg.minSamplesLeaf || nR < t.cfg.minSamplesLeaf {
				continue
			}

			impL := t.impurity(sumL, sumSqL, float64(nL))
			impR := t.impurity(sumT-sumL, sumSqT-sumSqL, float64(nR))
			gain := float64(n)*parentImp - float64(nL)*impL - float64(nR)*impR

			if gain > 1e-12 && (best == nil || gain > best.gain) {
				best = &splitCandidate{
					feature:   j,
					threshold: (col[sorted[k]] + col[sorted[k+1]]) / 2,
					gain:      gain,
				}
			}
		}
	}

	if best == nil {
		return nil
	}

	col := cols.data[best.feature]
	for _, i := range idx {
		if col[i] <= best.threshold {
			best.leftIdx = append(best.leftIdx, i)
		} else {
			best.rightIdx = append(best.rightIdx, i)
		}
	}
	return best
}

// predictRow walks a fitted tree for one feature vector.
func (t *tree) predictRow(row []float64) float64 {
	node := t.root
	for !node.leaf {
		if row[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.value
}

// sampleFeatures draws k distinct feature indices without replacement.
func sampleFeatures(p, k int, rng *rand.Rand) []int {
	if k >= p {
		all := make([]int, p)
		for j := range all {
			all[j] = j
		}
		return all
	}

	perm := rng.Perm(p)
	return perm[:k]
}

// DecisionTreeRegressor is a single CART regression tree. It exists mainly
// as a building block for ForestRegressor but follows the same public
// surface as the other estimators.
type DecisionTreeRegressor struct {
	state *model.StateManager
	tree  tree
	seed  int64
}

// TreeOption is a functional option shared by both tree kinds.
type TreeOption func(*treeConfig)

// WithTreeMaxDepth caps the tree depth.
func WithTreeMaxDepth(depth int) TreeOption {
	return func(c *treeConfig) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// WithTreeMinSamplesSplit sets the minimum node size eligible for a split.
func WithTreeMinSamplesSplit(n int) TreeOption {
	return func(c *treeConfig) {
		if n >= 2 {
			c.minSamplesSplit = n
		}
	}
}

// WithTreeMinSamplesLeaf sets the minimum rows in each child.
func WithTreeMinSamplesLeaf(n int) TreeOption {
	return func(c *treeConfig) {
		if n >= 1 {
			c.minSamplesLeaf = n
		}
	}
}

// WithTreeMaxFeatures sets the number of candidate features per node;
// 0 selects the task default (p/3 regression, sqrt(p) classification).
func WithTreeMaxFeatures(n int) TreeOption {
	return func(c *treeConfig) {
		if n >= 0 {
			c.maxFeatures = n
		}
	}
}

// NewDecisionTreeRegressor creates an unfitted regression tree.
func NewDecisionTreeRegressor(seed int64, opts ...TreeOption) *DecisionTreeRegressor {
	cfg := defaultTreeConfig()
	// A standalone tree sees every feature unless told otherwise.
	cfg.maxFeatures = -1
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxFeatures == -1 {
		cfg.maxFeatures = 0
	}
	return &DecisionTreeRegressor{
		state: model.NewStateManager(),
		tree:  tree{cfg: cfg},
		seed:  seed,
	}
}

// Fit grows the tree on all rows of X. y must be an n-by-1 matrix.
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	n, p := X.Dims()
	yRows, yCols := y.Dims()
	if n == 0 || p == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows != n {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", n, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewValueError("DecisionTreeRegressor.Fit", "y must be a column vector")
	}

	cols := newColumns(X)
	yv := make([]float64, n)
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		yv[i] = y.At(i, 0)
		idx[i] = i
	}

	rng := rand.New(rand.NewPCG(uint64(dt.seed), uint64(dt.seed)^0x9e3779b97f4a7c15))
	dt.tree.fit(cols, yv, idx, rng)

	dt.state.SetDimensions(p, n)
	dt.state.SetFitted()
	return nil
}

// Predict returns fitted values as an n-by-1 matrix.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if !dt.state.IsFitted() {
		return nil, errors.NewNotFittedError("DecisionTreeRegressor", "Predict")
	}

	n, p := X.Dims()
	nFeatures, _ := dt.state.GetDimensions()
	if p != nFeatures {
		return nil, errors.NewDimensionError("DecisionTreeRegressor.Predict", nFeatures, p, 1)
	}

	out := mat.NewDense(n, 1, nil)
	row := make([]float64, p)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			row[j] = X.At(i, j)
		}
		out.Set(i, 0, dt.tree.predictRow(row))
	}
	return out, nil
}

// GetFeatureImportances returns normalized impurity-decrease importances.
func (dt *DecisionTreeRegressor) GetFeatureImportances() []float64 {
	return normalizeImportances(dt.tree.importances)
}

func normalizeImportances(raw []float64) []float64 {
	out := make([]float64, len(raw))
	total := 0.0
	for _, v := range raw {
		total += v
	}
	if total == 0 {
		return out
	}
	for j, v := range raw {
		out[j] = v / total
	}
	return out
}
