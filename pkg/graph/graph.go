package graph

import (
	"sort"

	"github.com/ontolab/graphweave/internal/util"
	"github.com/ontolab/graphweave/pkg/common"
)

const (
	chunkPreviewRunes = 100
	excerptRunes      = 600
)

// Builder owns the run's node and edge maps, keyed by stable string ids.
// All mutation goes through Add* methods, which are idempotent, so a
// single Builder instance is threaded through the pipeline instead of a
// process-wide graph. Builder is not safe for concurrent mutation; the
// driver serializes writes.
type Builder struct {
	nodes map[string]common.Node
	edges map[string]common.Edge

	// adjacency holds neighbor node ids per node id, undirected view.
	adjacency map[string]map[string]bool

	// excerpts keeps a bounded extract of each chunk's text as summary
	// evidence. Full chunk text is never retained.
	excerpts map[int64]string
}

// NewBuilder creates an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes:     make(map[string]common.Node),
		edges:     make(map[string]common.Edge),
		adjacency: make(map[string]map[string]bool),
		excerpts:  make(map[int64]string),
	}
}

func edgeKey(source, target, relation string) string {
	return source + "\x1f" + target + "\x1f" + relation
}

// AddChunk adds the chunk's node with a single-line truncated preview and
// records a bounded excerpt for later summary evidence. Idempotent.
func (b *Builder) AddChunk(chunk common.Chunk) string {
	id := common.ChunkNodeID(chunk.ID)
	if _, ok := b.nodes[id]; !ok {
		flat := util.CollapseWhitespace(chunk.Text)
		preview := util.TruncateRunes(flat, chunkPreviewRunes)
		if len([]rune(flat)) > chunkPreviewRunes {
			preview += "..."
		}
		b.nodes[id] = common.Node{
			ID:     id,
			Type:   common.NodeTypeChunk,
			Text:   preview,
			Source: chunk.Source(),
		}
		b.excerpts[chunk.ID] = util.TruncateRunes(chunk.Text, excerptRunes)
	}
	return id
}

// AddEntity adds an entity node for a typed surface form. Idempotent.
func (b *Builder) AddEntity(entityType, text string) string {
	id := common.EntityNodeID(entityType, text)
	if _, ok := b.nodes[id]; !ok {
		b.nodes[id] = common.Node{
			ID:         id,
			Type:       common.NodeTypeEntity,
			EntityType: entityType,
			Text:       text,
		}
	}
	return id
}

// AddTripleEntity adds an entity node for a triple endpoint without an
// NER type. Idempotent.
func (b *Builder) AddTripleEntity(text string) string {
	return b.AddEntity(common.EntityTypeExtracted, text)
}

// AddMention links a chunk node to an entity node with a provenance edge.
// NER-derived mentions carry weight 1, relation-derived mentions 0.5;
// when both occur, the heavier weight wins.
func (b *Builder) AddMention(chunkID int64, entityNodeID string, weight float64) {
	source := common.ChunkNodeID(chunkID)
	if !b.hasNode(source) || !b.hasNode(entityNodeID) {
		return
	}

	key := edgeKey(source, entityNodeID, common.RelationMentions)
	if existing, ok := b.edges[key]; ok {
		if weight > existing.Weight {
			existing.Weight = weight
			b.edges[key] = existing
		}
		return
	}
	b.edges[key] = common.Edge{
		Source:   source,
		Target:   entityNodeID,
		Weight:   weight,
		Relation: common.RelationMentions,
	}
	b.link(source, entityNodeID)
}

// AddRelation links two entity nodes with a labeled relation edge,
// incrementing the weight when the same labeled edge already exists.
func (b *Builder) AddRelation(subjectNodeID, objectNodeID, relation string) {
	if subjectNodeID == objectNodeID {
		return
	}
	if !b.hasNode(subjectNodeID) || !b.hasNode(objectNodeID) {
		return
	}

	key := edgeKey(subjectNodeID, objectNodeID, relation)
	if existing, ok := b.edges[key]; ok {
		existing.Weight++
		b.edges[key] = existing
		return
	}
	b.edges[key] = common.Edge{
		Source:   subjectNodeID,
		Target:   objectNodeID,
		Weight:   1,
		Relation: relation,
	}
	b.link(subjectNodeID, objectNodeID)
}

func (b *Builder) hasNode(id string) bool {
	_, ok := b.nodes[id]
	return ok
}

func (b *Builder) link(a, c string) {
	if b.adjacency[a] == nil {
		b.adjacency[a] = make(map[string]bool)
	}
	if b.adjacency[c] == nil {
		b.adjacency[c] = make(map[string]bool)
	}
	b.adjacency[a][c] = true
	b.adjacency[c][a] = true
}

// Node returns the node for id and whether it exists.
func (b *Builder) Node(id string) (common.Node, bool) {
	n, ok := b.nodes[id]
	return n, ok
}

// Nodes returns all nodes sorted by id for deterministic export.
func (b *Builder) Nodes() []common.Node {
	out := make([]common.Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns all edges sorted by (source, target, relation) for
// deterministic export.
func (b *Builder) Edges() []common.Edge {
	out := make([]common.Edge, 0, len(b.edges))
	for _, e := range b.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Relation < out[j].Relation
	})
	return out
}

// Neighbors returns the sorted neighbor ids of a node in the undirected
// view of the graph.
func (b *Builder) Neighbors(id string) []string {
	adj := b.adjacency[id]
	if len(adj) == 0 {
		return nil
	}
	out := make([]string, 0, len(adj))
	for n := range adj {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// EdgesBetween returns the labeled edges in either direction between two
// node ids.
func (b *Builder) EdgesBetween(a, c string) []common.Edge {
	var out []common.Edge
	for _, e := range b.edges {
		if (e.Source == a && e.Target == c) || (e.Source == c && e.Target == a) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Relation < out[j].Relation })
	return out
}

// ChunkExcerpt returns the retained bounded excerpt for a chunk id.
func (b *Builder) ChunkExcerpt(chunkID int64) string {
	return b.excerpts[chunkID]
}

// NodeCount returns the number of nodes.
func (b *Builder) NodeCount() int { return len(b.nodes) }

// EdgeCount returns the number of edges.
func (b *Builder) EdgeCount() int { return len(b.edges) }
