package community

import (
	"errors"
	"fmt"
	"sort"

	gonumgraph "gonum.org/v1/gonum/graph"
	gonumcommunity "gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/ontolab/graphweave/pkg/graph"
)

// LouvainDetector runs Louvain modularity maximization. Resolution 1.0 is
// the classic modularity objective.
type LouvainDetector struct {
	Resolution float64
}

func (d *LouvainDetector) Name() string { return "louvain" }

func (d *LouvainDetector) Detect(b *graph.Builder) (partition map[string]int, err error) {
	resolution := d.Resolution
	if resolution <= 0 {
		resolution = 1.0
	}

	nodes := b.Nodes()
	if len(nodes) == 0 {
		return nil, errors.New("graph has no nodes")
	}

	// Node IDs are strings; the solver wants dense integer IDs.
	index := make(map[string]int64, len(nodes))
	reverse := make([]string, len(nodes))
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for i, n := range nodes {
		index[n.ID] = int64(i)
		reverse[i] = n.ID
		g.AddNode(simple.Node(int64(i)))
	}
	for _, e := range b.Edges() {
		from := simple.Node(index[e.Source])
		to := simple.Node(index[e.Target])
		if from == to {
			continue
		}
		g.SetWeightedEdge(simple.WeightedEdge{F: from, T: to, W: e.Weight})
	}

	// The solver panics rather than erroring on inputs it cannot handle;
	// convert that into an error so the detector chain can fall back.
	defer func() {
		if r := recover(); r != nil {
			partition = nil
			err = fmt.Errorf("modularization panicked: %v", r)
		}
	}()

	reduced := gonumcommunity.Modularize(g, resolution, nil)
	communities := reduced.Communities()
	if len(communities) == 0 {
		return nil, errors.New("modularization produced no communities")
	}

	// The solver's community order is not stable; sort by smallest member
	// so repeated runs over the same graph label identically.
	sort.Slice(communities, func(i, j int) bool {
		return minMember(communities[i]) < minMember(communities[j])
	})

	partition = make(map[string]int, len(nodes))
	for comm, members := range communities {
		for _, n := range members {
			partition[reverse[n.ID()]] = comm
		}
	}
	return partition, nil
}

func minMember(members []gonumgraph.Node) int64 {
	min := members[0].ID()
	for _, n := range members[1:] {
		if n.ID() < min {
			min = n.ID()
		}
	}
	return min
}
