package community

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ontolab/graphweave/pkg/common"
	"github.com/ontolab/graphweave/pkg/graph"
)

// twoClusters builds a graph with two dense entity clusters bridged by a
// single weak edge, plus one chunk per cluster.
func twoClusters(t *testing.T) *graph.Builder {
	t.Helper()
	b := graph.NewBuilder()

	b.AddChunk(common.Chunk{ID: 1, Text: "left cluster text"})
	b.AddChunk(common.Chunk{ID: 2, Text: "right cluster text"})

	left := []string{"Alice", "Bob", "Carol"}
	right := []string{"Xavier", "Yann", "Zoe"}
	for _, name := range left {
		id := b.AddEntity("PERSON", name)
		b.AddMention(1, id, 1)
	}
	for _, name := range right {
		id := b.AddEntity("PERSON", name)
		b.AddMention(2, id, 1)
	}

	for i := range left {
		for j := i + 1; j < len(left); j++ {
			b.AddRelation("PERSON_"+left[i], "PERSON_"+left[j], "knows")
		}
	}
	for i := range right {
		for j := i + 1; j < len(right); j++ {
			b.AddRelation("PERSON_"+right[i], "PERSON_"+right[j], "knows")
		}
	}
	b.AddRelation("PERSON_Carol", "PERSON_Xavier", "met once")
	return b
}

type failingDetector struct{}

func (failingDetector) Name() string { return "failing" }
func (failingDetector) Detect(b *graph.Builder) (map[string]int, error) {
	return nil, errors.New("solver exploded")
}

func TestSingleCommunityDetector(t *testing.T) {
	b := twoClusters(t)
	partition, err := SingleCommunityDetector{}.Detect(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(partition) != b.NodeCount() {
		t.Fatalf("expected every node assigned, got %d of %d", len(partition), b.NodeCount())
	}
	for id, comm := range partition {
		if comm != 0 {
			t.Fatalf("node %s in community %d, expected 0", id, comm)
		}
	}
}

func TestDetectWithFallback_SkipsFailures(t *testing.T) {
	b := twoClusters(t)
	partition := DetectWithFallback(b, failingDetector{}, SingleCommunityDetector{})
	if len(partition) != b.NodeCount() {
		t.Fatalf("expected fallback partition over all nodes, got %d", len(partition))
	}
}

func TestGreedyModularity_SeparatesClusters(t *testing.T) {
	b := twoClusters(t)
	partition, err := GreedyModularityDetector{}.Detect(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if partition["PERSON_Alice"] != partition["PERSON_Bob"] ||
		partition["PERSON_Alice"] != partition["PERSON_Carol"] {
		t.Fatalf("left cluster split: %v", partition)
	}
	if partition["PERSON_Xavier"] != partition["PERSON_Yann"] ||
		partition["PERSON_Xavier"] != partition["PERSON_Zoe"] {
		t.Fatalf("right cluster split: %v", partition)
	}
	if partition["PERSON_Alice"] == partition["PERSON_Xavier"] {
		t.Fatalf("clusters not separated: %v", partition)
	}
}

func TestLouvain_SeparatesClusters(t *testing.T) {
	b := twoClusters(t)
	partition, err := (&LouvainDetector{}).Detect(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if partition["PERSON_Alice"] != partition["PERSON_Bob"] {
		t.Fatalf("left cluster split: %v", partition)
	}
	if partition["PERSON_Alice"] == partition["PERSON_Xavier"] {
		t.Fatalf("clusters not separated: %v", partition)
	}
}

func TestBuildCommunities_MinimumEntityCount(t *testing.T) {
	b := graph.NewBuilder()
	b.AddChunk(common.Chunk{ID: 1, Text: "t"})
	a := b.AddEntity("PERSON", "Alice")
	c := b.AddEntity("PERSON", "Bob")
	b.AddMention(1, a, 1)
	b.AddMention(1, c, 1)

	partition := map[string]int{"chunk_1": 0, a: 0, c: 0}
	communities := BuildCommunities(b, partition, MinEntityNodes)
	if len(communities) != 0 {
		t.Fatalf("two-entity community should not qualify, got %v", communities)
	}
}

func TestBuildCommunities_CollectsChunksViaMentions(t *testing.T) {
	b := twoClusters(t)
	partition := map[string]int{
		"PERSON_Alice": 0, "PERSON_Bob": 0, "PERSON_Carol": 0,
		"PERSON_Xavier": 1, "PERSON_Yann": 1, "PERSON_Zoe": 1,
		"chunk_1": 0, "chunk_2": 1,
	}

	communities := BuildCommunities(b, partition, MinEntityNodes)
	if len(communities) != 2 {
		t.Fatalf("expected 2 communities, got %d", len(communities))
	}

	first := communities[0]
	wantEntities := []string{"PERSON_Alice", "PERSON_Bob", "PERSON_Carol"}
	if !reflect.DeepEqual(first.EntityNodes, wantEntities) {
		t.Fatalf("expected %v, got %v", wantEntities, first.EntityNodes)
	}
	if !reflect.DeepEqual(first.ChunkIDs, []int64{1}) {
		t.Fatalf("expected chunk 1, got %v", first.ChunkIDs)
	}
	if first.ID != 0 || communities[1].ID != 1 {
		t.Fatalf("expected sequential ids, got %d and %d", first.ID, communities[1].ID)
	}
}

func TestBuildCommunities_ChunkInOtherPartitionStillIncluded(t *testing.T) {
	b := graph.NewBuilder()
	b.AddChunk(common.Chunk{ID: 5, Text: "t"})
	ids := []string{}
	for _, name := range []string{"A1", "A2", "A3"} {
		id := b.AddEntity("CONCEPT", name)
		b.AddMention(5, id, 1)
		ids = append(ids, id)
	}

	// the chunk lands in a different partition than its entities
	partition := map[string]int{"chunk_5": 1, ids[0]: 0, ids[1]: 0, ids[2]: 0}
	communities := BuildCommunities(b, partition, MinEntityNodes)
	if len(communities) != 1 {
		t.Fatalf("expected 1 community, got %d", len(communities))
	}
	if !reflect.DeepEqual(communities[0].ChunkIDs, []int64{5}) {
		t.Fatalf("expected mentioning chunk included, got %v", communities[0].ChunkIDs)
	}
}
