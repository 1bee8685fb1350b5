package predictor

import (
	"math"
	"math/rand/v2"
	"sort"
)

const leaf = -1

// node is one entry of a flattened regression tree. Internal nodes route
// x[Feature] <= Threshold to Left, everything else to Right.
type node struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t"`
	Left      int       `json:"l"`
	Right     int       `json:"r"`
	Value     []float64 `json:"v,omitempty"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

func (t *tree) predict(x []float64) []float64 {
	i := 0
	for t.Nodes[i].Left != leaf {
		n := &t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

type treeParams struct {
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
}

// treeBuilder grows one CART tree minimising summed squared error across all
// outputs.
type treeBuilder struct {
	x          [][]float64
	y          [][]float64
	params     treeParams
	rng        *rand.Rand
	importance []float64
	nodes      []node
}

func growTree(x, y [][]float64, samples []int, params treeParams, rng *rand.Rand) (*tree, []float64) {
	b := &treeBuilder{
		x:          x,
		y:          y,
		params:     params,
		rng:        rng,
		importance: make([]float64, len(x[0])),
	}
	b.split(samples, 0)
	return &tree{Nodes: b.nodes}, b.importance
}

func (b *treeBuilder) leafValue(samples []int) []float64 {
	k := len(b.y[0])
	v := make([]float64, k)
	for _, s := range samples {
		for j := 0; j < k; j++ {
			v[j] += b.y[s][j]
		}
	}
	for j := range v {
		v[j] /= float64(len(samples))
	}
	return v
}

func (b *treeBuilder) sse(samples []int) float64 {
	mean := b.leafValue(samples)
	var total float64
	for _, s := range samples {
		for j, m := range mean {
			d := b.y[s][j] - m
			total += d * d
		}
	}
	return total
}

// split appends the subtree for samples and returns its node index.
func (b *treeBuilder) split(samples []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{Left: leaf, Right: leaf})

	if depth >= b.params.maxDepth || len(samples) < b.params.minSamplesSplit {
		b.nodes[idx].Value = b.leafValue(samples)
		return idx
	}

	parentSSE := b.sse(samples)
	if parentSSE <= 1e-12 {
		b.nodes[idx].Value = b.leafValue(samples)
		return idx
	}

	feature, threshold, gain, ok := b.bestSplit(samples, parentSSE)
	if !ok {
		b.nodes[idx].Value = b.leafValue(samples)
		return idx
	}

	var left, right []int
	for _, s := range samples {
		if b.x[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		b.nodes[idx].Value = b.leafValue(samples)
		return idx
	}
	b.importance[feature] += gain

	l := b.split(left, depth+1)
	r := b.split(right, depth+1)
	b.nodes[idx].Feature = feature
	b.nodes[idx].Threshold = threshold
	b.nodes[idx].Left = l
	b.nodes[idx].Right = r
	return idx
}

func (b *treeBuilder) candidateFeatures() []int {
	n := len(b.x[0])
	perm := b.rng.Perm(n)
	m := b.params.maxFeatures
	if m <= 0 || m > n {
		m = n
	}
	out := perm[:m]
	sort.Ints(out)
	return out
}

func (b *treeBuilder) bestSplit(samples []int, parentSSE float64) (feature int, threshold, gain float64, ok bool) {
	k := len(b.y[0])
	n := len(samples)
	minLeaf := b.params.minSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}

	total := make([]float64, k)
	totalSq := make([]float64, k)
	for _, s := range samples {
		for j := 0; j < k; j++ {
			total[j] += b.y[s][j]
			totalSq[j] += b.y[s][j] * b.y[s][j]
		}
	}

	order := make([]int, n)
	leftSum := make([]float64, k)
	leftSq := make([]float64, k)
	best := math.Inf(1)

	for _, f := range b.candidateFeatures() {
		copy(order, samples)
		sort.SliceStable(order, func(i, j int) bool { return b.x[order[i]][f] < b.x[order[j]][f] })

		for j := range leftSum {
			leftSum[j], leftSq[j] = 0, 0
		}
		for i := 0; i < n-1; i++ {
			s := order[i]
			for j := 0; j < k; j++ {
				leftSum[j] += b.y[s][j]
				leftSq[j] += b.y[s][j] * b.y[s][j]
			}
			nl, nr := i+1, n-i-1
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			lo, hi := b.x[s][f], b.x[order[i+1]][f]
			if lo == hi {
				continue
			}
			var childSSE float64
			for j := 0; j < k; j++ {
				rs := total[j] - leftSum[j]
				rq := totalSq[j] - leftSq[j]
				childSSE += leftSq[j] - leftSum[j]*leftSum[j]/float64(nl)
				childSSE += rq - rs*rs/float64(nr)
			}
			if childSSE < best-1e-12 {
				best = childSSE
				feature = f
				threshold = lo + (hi-lo)/2
				if threshold >= hi {
					threshold = lo
				}
				ok = true
			}
		}
	}
	if !ok {
		return 0, 0, 0, false
	}
	gain = parentSSE - best
	if gain <= 0 {
		return 0, 0, 0, false
	}
	return feature, threshold, gain, true
}
