package scorer

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const eulerGamma = 0.5772156649

// iNode is one isolation-tree node; children index into the tree slice
type iNode struct {
	Feature int     `msgpack:"f"`
	Split   float64 `msgpack:"s"`
	Left    int     `msgpack:"l"`
	Right   int     `msgpack:"r"`
	Size    int     `msgpack:"n"`
	Leaf    bool    `msgpack:"leaf"`
}

type iTree struct {
	Nodes []iNode `msgpack:"nodes"`
}

// IsolationForest scores how easily a point is isolated by random splits
type IsolationForest struct {
	Trees      []iTree `msgpack:"trees"`
	SampleSize int     `msgpack:"sample_size"`
	Threshold  float64 `msgpack:"threshold"`
}

// ForestParams configures FitForest
type ForestParams struct {
	Trees         int
	SampleSize    int
	Contamination float64
	Seed          int64
}

// averagePathLength is c(n), the mean unsuccessful-search depth of a BST
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// FitForest grows the trees from a seeded source and sets the anomaly
// threshold at the (1-contamination) quantile of the training scores.
func FitForest(x [][]float64, p ForestParams) (*IsolationForest, error) {
	if len(x) < 2 {
		return nil, fmt.Errorf("isolation forest needs at least 2 samples, got %d", len(x))
	}

	rng := rand.New(rand.NewSource(p.Seed))
	sampleSize := p.SampleSize
	if sampleSize > len(x) {
		sampleSize = len(x)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sampleSize))))

	f := &IsolationForest{SampleSize: sampleSize}
	for t := 0; t < p.Trees; t++ {
		perm := rng.Perm(len(x))[:sampleSize]
		sample := make([][]float64, sampleSize)
		for i, idx := range perm {
			sample[i] = x[idx]
		}
		tree := iTree{}
		tree.grow(sample, 0, heightLimit, rng)
		f.Trees = append(f.Trees, tree)
	}

	scores := make([]float64, len(x))
	for i := range x {
		scores[i] = f.Score(x[i])
	}
	sort.Float64s(scores)
	f.Threshold = stat.Quantile(1-p.Contamination, stat.LinInterp, scores, nil)
	return f, nil
}

// grow appends the subtree for rows and returns its node index
func (t *iTree) grow(rows [][]float64, depth, limit int, rng *rand.Rand) int {
	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, iNode{Size: len(rows)})
	if depth >= limit || len(rows) <= 1 {
		t.Nodes[idx].Leaf = true
		return idx
	}

	// only features that vary can split
	var candidates []int
	lows := make([]float64, len(rows[0]))
	highs := make([]float64, len(rows[0]))
	for j := range rows[0] {
		lo, hi := rows[0][j], rows[0][j]
		for _, r := range rows[1:] {
			lo = math.Min(lo, r[j])
			hi = math.Max(hi, r[j])
		}
		lows[j], highs[j] = lo, hi
		if hi > lo {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		t.Nodes[idx].Leaf = true
		return idx
	}

	feature := candidates[rng.Intn(len(candidates))]
	split := lows[feature] + rng.Float64()*(highs[feature]-lows[feature])

	var left, right [][]float64
	for _, r := range rows {
		if r[feature] < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	t.Nodes[idx].Feature = feature
	t.Nodes[idx].Split = split
	l := t.grow(left, depth+1, limit, rng)
	r := t.grow(right, depth+1, limit, rng)
	t.Nodes[idx].Left = l
	t.Nodes[idx].Right = r
	return idx
}

func (t *iTree) pathLength(x []float64) float64 {
	depth := 0
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return float64(depth) + averagePathLength(n.Size)
		}
		if x[n.Feature] < n.Split {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// Score returns the anomaly score in [0,1]; higher is more anomalous
func (f *IsolationForest) Score(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var total float64
	for i := range f.Trees {
		total += f.Trees[i].pathLength(x)
	}
	mean := total / float64(len(f.Trees))
	c := averagePathLength(f.SampleSize)
	if c == 0 {
		return 0
	}
	return math.Pow(2, -mean/c)
}

// IsAnomaly reports whether x scores above the contamination threshold
func (f *IsolationForest) IsAnomaly(x []float64) bool {
	return f.Score(x) > f.Threshold
}
