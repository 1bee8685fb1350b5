package predictor

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// forest is a bagged ensemble of regression trees.
type forest struct {
	Trees      []*tree   `json:"trees"`
	Importance []float64 `json:"importance"`
}

// fitForest trains cfg.Estimators trees concurrently. Each tree draws its
// bootstrap sample and feature subsets from an RNG seeded by (cfg.Seed, tree
// index), so the result does not depend on goroutine scheduling. It returns
// the forest and the out-of-bag prediction for every sample (NaN where a
// sample was in every bootstrap).
func fitForest(ctx context.Context, x, y [][]float64, cfg Config) (*forest, [][]float64, error) {
	n, p, k := len(x), len(x[0]), len(y[0])
	params := treeParams{
		maxDepth:        cfg.MaxDepth,
		minSamplesSplit: cfg.MinSamplesSplit,
		minSamplesLeaf:  cfg.MinSamplesLeaf,
		maxFeatures:     int(math.Ceil(cfg.MaxFeatures * float64(p))),
	}

	trees := make([]*tree, cfg.Estimators)
	importances := make([][]float64, cfg.Estimators)
	inBag := make([][]bool, cfg.Estimators)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for t := 0; t < cfg.Estimators; t++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(t)+1))
			samples := make([]int, n)
			bag := make([]bool, n)
			for i := range samples {
				s := i
				if cfg.Bootstrap {
					s = rng.IntN(n)
				}
				samples[i] = s
				bag[s] = true
			}
			trees[t], importances[t] = growTree(x, y, samples, params, rng)
			inBag[t] = bag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	f := &forest{Trees: trees, Importance: make([]float64, p)}
	for _, imp := range importances {
		var total float64
		for _, v := range imp {
			total += v
		}
		if total == 0 {
			continue
		}
		for j, v := range imp {
			f.Importance[j] += v / total
		}
	}

	oob := make([][]float64, n)
	counts := make([]int, n)
	for i := range oob {
		oob[i] = make([]float64, k)
	}
	for t, tr := range trees {
		for i := 0; i < n; i++ {
			if inBag[t][i] {
				continue
			}
			v := tr.predict(x[i])
			for j := range v {
				oob[i][j] += v[j]
			}
			counts[i]++
		}
	}
	for i := range oob {
		for j := range oob[i] {
			if counts[i] == 0 {
				oob[i][j] = math.NaN()
			} else {
				oob[i][j] /= float64(counts[i])
			}
		}
	}
	return f, oob, nil
}

// predict averages the trees' outputs in tree order.
func (f *forest) predict(x []float64) []float64 {
	var out []float64
	for _, t := range f.Trees {
		v := t.predict(x)
		if out == nil {
			out = make([]float64, len(v))
		}
		for j := range v {
			out[j] += v[j]
		}
	}
	for j := range out {
		out[j] /= float64(len(f.Trees))
	}
	return out
}
