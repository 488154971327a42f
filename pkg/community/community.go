package community

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ontolab/graphweave/pkg/common"
	"github.com/ontolab/graphweave/pkg/graph"
	"github.com/ontolab/graphweave/pkg/logger"
)

// MinEntityNodes is the qualifying size: communities with fewer entity
// nodes are not surfaced.
const MinEntityNodes = 3

// Detector partitions the graph's nodes. The returned map assigns every
// node ID a community index.
type Detector interface {
	Name() string
	Detect(b *graph.Builder) (map[string]int, error)
}

// SingleCommunityDetector puts every node in one community. It cannot
// fail, which makes it the terminal fallback.
type SingleCommunityDetector struct{}

func (SingleCommunityDetector) Name() string { return "single" }

func (SingleCommunityDetector) Detect(b *graph.Builder) (map[string]int, error) {
	partition := make(map[string]int, b.NodeCount())
	for _, n := range b.Nodes() {
		partition[n.ID] = 0
	}
	return partition, nil
}

// DetectWithFallback walks the detector chain and returns the first
// partition produced. Failures are logged and the next detector is tried;
// with SingleCommunityDetector last the chain always yields a partition.
func DetectWithFallback(b *graph.Builder, detectors ...Detector) map[string]int {
	for _, d := range detectors {
		partition, err := d.Detect(b)
		if err != nil {
			logger.Warn("[Community] Detector failed, falling back", "detector", d.Name(), "error", err)
			continue
		}
		logger.Debug("[Community] Partition produced", "detector", d.Name(), "nodes", len(partition))
		return partition
	}
	partition, _ := SingleCommunityDetector{}.Detect(b)
	return partition
}

// DefaultDetectors is the standard chain: Louvain, then greedy modularity,
// then the trivial single partition.
func DefaultDetectors() []Detector {
	return []Detector{
		&LouvainDetector{},
		&GreedyModularityDetector{},
		SingleCommunityDetector{},
	}
}

// BuildCommunities turns a node partition into qualifying communities:
// groups with at least minEntities entity nodes, each carrying the chunk
// IDs of its chunk members plus the chunks neighboring its entities.
// Community IDs are assigned in a deterministic order.
func BuildCommunities(b *graph.Builder, partition map[string]int, minEntities int) []common.Community {
	if minEntities <= 0 {
		minEntities = MinEntityNodes
	}

	groups := make(map[int][]string)
	for nodeID, comm := range partition {
		groups[comm] = append(groups[comm], nodeID)
	}

	var communities []common.Community
	for _, members := range groups {
		var entityNodes []string
		chunkIDs := make(map[int64]bool)

		for _, id := range members {
			node, ok := b.Node(id)
			if !ok {
				continue
			}
			switch node.Type {
			case common.NodeTypeChunk:
				if chunkID, ok := parseChunkNodeID(id); ok {
					chunkIDs[chunkID] = true
				}
			case common.NodeTypeEntity:
				entityNodes = append(entityNodes, id)
			}
		}
		if len(entityNodes) < minEntities {
			continue
		}

		// Chunks mentioning a member entity provide context even when the
		// partition placed them elsewhere.
		for _, entityID := range entityNodes {
			for _, neighbor := range b.Neighbors(entityID) {
				if chunkID, ok := parseChunkNodeID(neighbor); ok {
					chunkIDs[chunkID] = true
				}
			}
		}

		sort.Strings(entityNodes)
		ids := make([]int64, 0, len(chunkIDs))
		for id := range chunkIDs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		communities = append(communities, common.Community{
			EntityNodes: entityNodes,
			ChunkIDs:    ids,
		})
	}

	sort.Slice(communities, func(i, j int) bool {
		return communities[i].EntityNodes[0] < communities[j].EntityNodes[0]
	})
	for i := range communities {
		communities[i].ID = i
	}
	return communities
}

func parseChunkNodeID(nodeID string) (int64, bool) {
	rest, ok := strings.CutPrefix(nodeID, "chunk_")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
