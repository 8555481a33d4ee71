package pronos

import (
	"fmt"
	"math/rand"
	"sort"
)

// Compile-time check that GBDTRegressor satisfies Regressor
var _ Regressor = (*GBDTRegressor)(nil)

// treeNode is one node of a regression tree. Leaves carry a value,
// internal nodes route on feature <= threshold.
type treeNode struct {
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
	Value     float64   `json:"value"`
	Leaf      bool      `json:"leaf"`
}

func (n *treeNode) predict(x []float64) float64 {
	if n.Leaf {
		return n.Value
	}
	if x[n.Feature] <= n.Threshold {
		return n.Left.predict(x)
	}
	return n.Right.predict(x)
}

// GBDTRegressor is a gradient boosted ensemble of regression trees with
// squared error loss. Training is fully deterministic for a given seed.
// The exported fields make the fitted model JSON serializable.
type GBDTRegressor struct {
	NumTrees     int     `json:"numTrees"`
	LearningRate float64 `json:"learningRate"`
	MaxDepth     int     `json:"maxDepth"`
	Subsample    float64 `json:"subsample"`
	Seed         int64   `json:"seed"`

	BasePrediction float64     `json:"basePrediction"`
	Trees          []*treeNode `json:"trees"`
	Importances    []float64   `json:"importances"`
}

// NewGBDTRegressor builds an untrained regressor from the configuration
func NewGBDTRegressor(cfg *Config) *GBDTRegressor {
	return &GBDTRegressor{
		NumTrees:     cfg.NumTrees,
		LearningRate: cfg.LearningRate,
		MaxDepth:     cfg.MaxDepth,
		Subsample:    cfg.Subsample,
		Seed:         cfg.Seed,
	}
}

// Fit trains the ensemble on the given rows and targets
func (g *GBDTRegressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("cannot fit on an empty dataset")
	}
	if len(X) != len(y) {
		return fmt.Errorf("row count %d does not match target count %d", len(X), len(y))
	}

	numFeatures := len(X[0])
	for i, row := range X {
		if len(row) != numFeatures {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), numFeatures)
		}
	}

	rng := rand.New(rand.NewSource(g.Seed))

	// Start from the target mean
	var sum float64
	for _, v := range y {
		sum += v
	}
	g.BasePrediction = sum / float64(len(y))

	predictions := make([]float64, len(y))
	for i := range predictions {
		predictions[i] = g.BasePrediction
	}

	g.Trees = make([]*treeNode, 0, g.NumTrees)
	g.Importances = make([]float64, numFeatures)

	residuals := make([]float64, len(y))
	sampleSize := int(g.Subsample * float64(len(y)))
	if sampleSize < 1 {
		sampleSize = 1
	}

	for t := 0; t < g.NumTrees; t++ {
		// Squared error loss: the negative gradient is the residual
		for i := range y {
			residuals[i] = y[i] - predictions[i]
		}

		rows := subsampleRows(len(y), sampleSize, rng)

		tree := g.buildTree(X, residuals, rows, 0)
		g.Trees = append(g.Trees, tree)

		for i := range predictions {
			predictions[i] += g.LearningRate * tree.predict(X[i])
		}
	}

	// Normalize importances to sum to 1
	var total float64
	for _, imp := range g.Importances {
		total += imp
	}
	if total > 0 {
		for i := range g.Importances {
			g.Importances[i] /= total
		}
	}

	return nil
}

// Predict scores one row with the fitted ensemble
func (g *GBDTRegressor) Predict(x []float64) float64 {
	prediction := g.BasePrediction
	for _, tree := range g.Trees {
		prediction += g.LearningRate * tree.predict(x)
	}
	return prediction
}

// FeatureImportances returns the normalized variance reduction attributed
// to each feature, nil before fitting
func (g *GBDTRegressor) FeatureImportances() []float64 {
	if g.Importances == nil {
		return nil
	}
	importances := make([]float64, len(g.Importances))
	copy(importances, g.Importances)
	return importances
}

// subsampleRows draws n distinct row indices without replacement
func subsampleRows(total, n int, rng *rand.Rand) []int {
	if n >= total {
		rows := make([]int, total)
		for i := range rows {
			rows[i] = i
		}
		return rows
	}
	perm := rng.Perm(total)
	rows := perm[:n]
	return rows
}

// buildTree grows a regression tree on the residuals of the sampled rows
func (g *GBDTRegressor) buildTree(X [][]float64, residuals []float64, rows []int, depth int) *treeNode {
	if depth >= g.MaxDepth || len(rows) < 2 {
		return &treeNode{Leaf: true, Value: meanOf(residuals, rows)}
	}

	feature, threshold, gain, ok := g.bestSplit(X, residuals, rows)
	if !ok {
		return &treeNode{Leaf: true, Value: meanOf(residuals, rows)}
	}

	g.Importances[feature] += gain

	var left, right []int
	for _, r := range rows {
		if X[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      g.buildTree(X, residuals, left, depth+1),
		Right:     g.buildTree(X, residuals, right, depth+1),
	}
}

// bestSplit finds the split with the largest squared error reduction
// across all features. Returns ok=false when no split improves on the
// parent node.
func (g *GBDTRegressor) bestSplit(X [][]float64, residuals []float64, rows []int) (feature int, threshold, gain float64, ok bool) {
	var parentSum, parentSumSq float64
	for _, r := range rows {
		parentSum += residuals[r]
		parentSumSq += residuals[r] * residuals[r]
	}
	n := float64(len(rows))
	parentSSE := parentSumSq - parentSum*parentSum/n

	numFeatures := len(X[rows[0]])
	bestGain := 0.0

	type pair struct {
		value    float64
		residual float64
	}
	pairs := make([]pair, len(rows))

	for f := 0; f < numFeatures; f++ {
		for i, r := range rows {
			pairs[i] = pair{value: X[r][f], residual: residuals[r]}
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].value < pairs[j].value })

		// Scan split points between distinct adjacent values using
		// running sums of the left partition
		var leftSum, leftSumSq float64
		for i := 0; i < len(pairs)-1; i++ {
			leftSum += pairs[i].residual
			leftSumSq += pairs[i].residual * pairs[i].residual

			if pairs[i].value == pairs[i+1].value {
				continue
			}

			nl := float64(i + 1)
			nr := n - nl
			rightSum := parentSum - leftSum
			rightSumSq := parentSumSq - leftSumSq

			leftSSE := leftSumSq - leftSum*leftSum/nl
			rightSSE := rightSumSq - rightSum*rightSum/nr

			improvement := parentSSE - leftSSE - rightSSE
			if improvement > bestGain {
				bestGain = improvement
				feature = f
				threshold = (pairs[i].value + pairs[i+1].value) / 2.0
				ok = true
			}
		}
	}

	gain = bestGain
	return feature, threshold, gain, ok
}

// meanOf averages the residuals of the given rows
func meanOf(residuals []float64, rows []int) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rows {
		sum += residuals[r]
	}
	return sum / float64(len(rows))
}
