package graph

import (
	"reflect"
	"strings"
	"testing"

	"github.com/ontolab/graphweave/pkg/common"
)

func TestAddChunk_Idempotent(t *testing.T) {
	b := NewBuilder()
	chunk := common.Chunk{ID: 1, Text: "some chunk text"}

	id1 := b.AddChunk(chunk)
	id2 := b.AddChunk(chunk)
	if id1 != id2 || id1 != "chunk_1" {
		t.Fatalf("expected stable id chunk_1, got %q and %q", id1, id2)
	}
	if b.NodeCount() != 1 {
		t.Fatalf("expected 1 node, got %d", b.NodeCount())
	}
}

func TestAddChunk_TruncatesPreview(t *testing.T) {
	b := NewBuilder()
	long := strings.Repeat("x", 250)
	b.AddChunk(common.Chunk{ID: 2, Text: long})

	node, ok := b.Node("chunk_2")
	if !ok {
		t.Fatal("chunk node missing")
	}
	if len(node.Text) != 103 || !strings.HasSuffix(node.Text, "...") {
		t.Fatalf("expected 100-rune preview with ellipsis, got %d chars", len(node.Text))
	}
	if len(b.ChunkExcerpt(2)) != 250 {
		t.Fatalf("expected full excerpt below bound, got %d", len(b.ChunkExcerpt(2)))
	}
}

func TestAddChunk_PreviewIsSingleLine(t *testing.T) {
	b := NewBuilder()
	b.AddChunk(common.Chunk{ID: 3, Text: "first line\n\tsecond   line\n"})

	node, ok := b.Node("chunk_3")
	if !ok {
		t.Fatal("chunk node missing")
	}
	if node.Text != "first line second line" {
		t.Fatalf("expected collapsed preview, got %q", node.Text)
	}
}

func TestAddMention_MaxWeightWins(t *testing.T) {
	b := NewBuilder()
	b.AddChunk(common.Chunk{ID: 1, Text: "t"})
	entityID := b.AddEntity("PERSON", "Alice")

	b.AddMention(1, entityID, 0.5)
	b.AddMention(1, entityID, 1)
	b.AddMention(1, entityID, 0.5)

	edges := b.Edges()
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	if edges[0].Weight != 1 || edges[0].Relation != common.RelationMentions {
		t.Fatalf("unexpected edge %+v", edges[0])
	}
}

func TestAddMention_RequiresBothNodes(t *testing.T) {
	b := NewBuilder()
	b.AddMention(1, "PERSON_Alice", 1)
	if b.EdgeCount() != 0 {
		t.Fatalf("expected no edges, got %d", b.EdgeCount())
	}
}

func TestAddRelation_WeightAccumulates(t *testing.T) {
	b := NewBuilder()
	a := b.AddEntity("PERSON", "Alice")
	g := b.AddEntity("ORGANIZATION", "Google")

	b.AddRelation(a, g, "works at")
	b.AddRelation(a, g, "works at")
	b.AddRelation(a, g, "visited")

	edges := b.EdgesBetween(a, g)
	if len(edges) != 2 {
		t.Fatalf("expected 2 labeled edges, got %d", len(edges))
	}
	// sorted by relation: visited, works at
	if edges[0].Relation != "visited" || edges[0].Weight != 1 {
		t.Fatalf("unexpected edge %+v", edges[0])
	}
	if edges[1].Relation != "works at" || edges[1].Weight != 2 {
		t.Fatalf("unexpected edge %+v", edges[1])
	}
}

func TestAddRelation_SkipsSelfLoops(t *testing.T) {
	b := NewBuilder()
	a := b.AddEntity("PERSON", "Alice")
	b.AddRelation(a, a, "knows")
	if b.EdgeCount() != 0 {
		t.Fatalf("expected no self-loop edge, got %d edges", b.EdgeCount())
	}
}

func TestNeighbors_UndirectedAndSorted(t *testing.T) {
	b := NewBuilder()
	b.AddChunk(common.Chunk{ID: 1, Text: "t"})
	a := b.AddEntity("PERSON", "Alice")
	g := b.AddEntity("ORGANIZATION", "Google")
	b.AddMention(1, a, 1)
	b.AddRelation(a, g, "works at")

	got := b.Neighbors(a)
	want := []string{"ORGANIZATION_Google", "chunk_1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNodesAndEdges_Deterministic(t *testing.T) {
	build := func() *Builder {
		b := NewBuilder()
		b.AddChunk(common.Chunk{ID: 9, Text: "t"})
		b.AddChunk(common.Chunk{ID: 2, Text: "t"})
		x := b.AddEntity("PERSON", "Zed")
		y := b.AddEntity("PERSON", "Amy")
		b.AddMention(9, x, 1)
		b.AddMention(2, y, 1)
		b.AddRelation(x, y, "met")
		return b
	}

	first, second := build(), build()
	if !reflect.DeepEqual(first.Nodes(), second.Nodes()) {
		t.Fatal("node export is not deterministic")
	}
	if !reflect.DeepEqual(first.Edges(), second.Edges()) {
		t.Fatal("edge export is not deterministic")
	}
}
