package iforest

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

const leaf = -1

type node struct {
	feature   int
	threshold float64
	left      int // index into itree.nodes, leaf for terminal nodes
	right     int
	size      int // training rows that reached the node
}

// itree is a single isolation tree stored as a flat node slice, root first
type itree struct {
	nodes []node
}

type treeBuilder struct {
	x        *mat.Dense
	rng      *rand.Rand
	maxDepth int
	features int
	lo, hi   []float64
	cand     []int
	nodes    []node
}

func buildTree(x *mat.Dense, rows []int, maxDepth int, rng *rand.Rand) *itree {
	_, c := x.Dims()
	b := &treeBuilder{
		x:        x,
		rng:      rng,
		maxDepth: maxDepth,
		features: c,
		lo:       make([]float64, c),
		hi:       make([]float64, c),
		cand:     make([]int, 0, c),
	}
	b.grow(rows, 0)
	return &itree{nodes: b.nodes}
}

// grow appends the subtree for rows and returns its root index.
// rows is partitioned in place.
func (b *treeBuilder) grow(rows []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, node{left: leaf, right: leaf, size: len(rows)})

	if depth >= b.maxDepth || len(rows) <= 1 {
		return id
	}

	for j := 0; j < b.features; j++ {
		b.lo[j] = math.Inf(1)
		b.hi[j] = math.Inf(-1)
	}
	for _, r := range rows {
		row := b.x.RawRowView(r)
		for j, v := range row {
			b.lo[j] = math.Min(b.lo[j], v)
			b.hi[j] = math.Max(b.hi[j], v)
		}
	}
	b.cand = b.cand[:0]
	for j := 0; j < b.features; j++ {
		if b.hi[j] > b.lo[j] {
			b.cand = append(b.cand, j)
		}
	}
	if len(b.cand) == 0 {
		// all remaining rows are identical
		return id
	}

	f := b.cand[b.rng.IntN(len(b.cand))]
	lo, hi := b.lo[f], b.hi[f]
	threshold := lo + b.rng.Float64()*(hi-lo)
	if threshold >= hi {
		threshold = lo
	}

	// lo <= threshold < hi, so both sides are non-empty
	i, k := 0, len(rows)-1
	for i <= k {
		if b.x.At(rows[i], f) <= threshold {
			i++
		} else {
			rows[i], rows[k] = rows[k], rows[i]
			k--
		}
	}

	left := b.grow(rows[:i], depth+1)
	right := b.grow(rows[i:], depth+1)

	n := &b.nodes[id]
	n.feature = f
	n.threshold = threshold
	n.left = left
	n.right = right
	return id
}

// pathLength is the depth at which x lands, corrected by c(size) at the leaf
func (t *itree) pathLength(x []float64) float64 {
	var depth float64
	n := &t.nodes[0]
	for n.left != leaf {
		if x[n.feature] <= n.threshold {
			n = &t.nodes[n.left]
		} else {
			n = &t.nodes[n.right]
		}
		depth++
	}
	return depth + averagePathLength(n.size)
}

// averagePathLength is c(n), the mean path length of an unsuccessful
// search in a binary search tree of n points
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

const eulerGamma = 0.5772156649015329
