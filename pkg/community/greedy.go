package community

import (
	"errors"
	"sort"

	"github.com/ontolab/graphweave/pkg/graph"
)

// GreedyModularityDetector is an agglomerative fallback: every node starts
// in its own community and the connected pair whose merge gains the most
// modularity is merged until no merge improves it. Quadratic, but it has
// no randomized solver underneath and handles anything the Louvain pass
// chokes on.
type GreedyModularityDetector struct{}

func (GreedyModularityDetector) Name() string { return "greedy-modularity" }

func (GreedyModularityDetector) Detect(b *graph.Builder) (map[string]int, error) {
	nodes := b.Nodes()
	if len(nodes) == 0 {
		return nil, errors.New("graph has no nodes")
	}

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	// comm[i] is the community of node i; communities are merged by
	// relabeling, tracked through degree sums and inter-community weights.
	comm := make([]int, len(nodes))
	degree := make([]float64, len(nodes))
	for i := range comm {
		comm[i] = i
	}

	// between[a][b] holds the total edge weight between communities a and
	// b, kept symmetric with a < b.
	between := make(map[int]map[int]float64)
	addBetween := func(a, c int, w float64) {
		if a > c {
			a, c = c, a
		}
		if between[a] == nil {
			between[a] = make(map[int]float64)
		}
		between[a][c] += w
	}

	var totalWeight float64
	for _, e := range b.Edges() {
		u, v := index[e.Source], index[e.Target]
		totalWeight += e.Weight
		degree[u] += e.Weight
		degree[v] += e.Weight
		if u != v {
			addBetween(u, v, e.Weight)
		}
	}
	if totalWeight == 0 {
		return nil, errors.New("graph has no edge weight")
	}

	commDegree := make(map[int]float64, len(nodes))
	for i, d := range degree {
		commDegree[i] = d
	}

	for {
		bestGain := 0.0
		bestA, bestB := -1, -1
		for a, row := range between {
			for c, w := range row {
				// Merging connected communities a and c changes modularity
				// by w/m - deg(a)*deg(c)/(2m^2).
				gain := w/totalWeight - commDegree[a]*commDegree[c]/(2*totalWeight*totalWeight)
				if gain > bestGain {
					bestGain = gain
					bestA, bestB = a, c
				}
			}
		}
		if bestA < 0 {
			break
		}
		mergeCommunities(comm, between, commDegree, bestA, bestB)
	}

	// Relabel surviving communities densely and deterministically.
	labels := make(map[int]int)
	var survivors []int
	seen := make(map[int]bool)
	for _, c := range comm {
		if !seen[c] {
			seen[c] = true
			survivors = append(survivors, c)
		}
	}
	sort.Ints(survivors)
	for i, c := range survivors {
		labels[c] = i
	}

	partition := make(map[string]int, len(nodes))
	for i, n := range nodes {
		partition[n.ID] = labels[comm[i]]
	}
	return partition, nil
}

// mergeCommunities folds community b into community a, updating node
// labels, degree sums, and inter-community weights.
func mergeCommunities(comm []int, between map[int]map[int]float64, commDegree map[int]float64, a, b int) {
	for i, c := range comm {
		if c == b {
			comm[i] = a
		}
	}
	commDegree[a] += commDegree[b]
	delete(commDegree, b)

	// Collect b's connections, drop them, and reattach to a.
	reattach := make(map[int]float64)
	for lo, row := range between {
		for hi, w := range row {
			if lo != b && hi != b {
				continue
			}
			other := lo
			if other == b {
				other = hi
			}
			if other != a {
				reattach[other] += w
			}
			delete(row, hi)
		}
		if len(row) == 0 {
			delete(between, lo)
		}
	}
	for other, w := range reattach {
		lo, hi := a, other
		if lo > hi {
			lo, hi = hi, lo
		}
		if between[lo] == nil {
			between[lo] = make(map[int]float64)
		}
		between[lo][hi] += w
	}
}
