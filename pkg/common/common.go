package common

import (
	"fmt"
	"time"
)

// Node types used throughout the graph. A node is either a chunk node
// carrying a text preview and its source, or an entity node carrying an
// entity type and display text.
const (
	NodeTypeChunk  = "chunk"
	NodeTypeEntity = "entity"
)

// RelationMentions is the generic provenance relation linking a chunk node
// to an entity node. It is excluded from key-relation evidence when
// summarizing communities.
const RelationMentions = "mentions"

// EntityTypeExtracted labels entity nodes created from triple endpoints
// rather than named-entity recognition.
const EntityTypeExtracted = "EXTRACTED"

// Chunk is one immutable input row from the chunk store. The embedding is
// optional and only present when the upstream store has one for the chunk.
type Chunk struct {
	ID        int64             `json:"id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata"`
	Embedding []float32         `json:"embedding,omitempty"`
}

// Source returns the chunk's source label from its metadata, or "unknown".
func (c Chunk) Source() string {
	if s, ok := c.Metadata["source"]; ok && s != "" {
		return s
	}
	return "unknown"
}

// Node is a tagged variant over the two node kinds. EntityType and Source
// are only set for entity and chunk nodes respectively.
type Node struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	EntityType string `json:"entity_type,omitempty"`
	Text       string `json:"text"`
	Source     string `json:"source,omitempty"`
}

// Edge is an edge-attribute record between two node ids. Relation edges
// carry the extracted relation label; provenance edges carry "mentions".
type Edge struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Weight   float64 `json:"weight"`
	Relation string  `json:"relation"`
}

// Triple is one (subject, relation, object) fact extracted from a chunk.
// Direction matters: subject acts on object.
type Triple struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
	ChunkID  int64  `json:"chunk_id"`
}

// ChunkNodeID returns the stable node id for a chunk.
func ChunkNodeID(chunkID int64) string {
	return fmt.Sprintf("chunk_%d", chunkID)
}

// EntityNodeID returns the stable node id for a typed entity surface form.
// Identity is scoped to a single processing run.
func EntityNodeID(entityType, text string) string {
	return entityType + "_" + text
}

// TripleNodeID returns the stable node id for a triple endpoint. Triple
// endpoints have no NER type, so they share the EXTRACTED namespace.
func TripleNodeID(text string) string {
	return EntityNodeID(EntityTypeExtracted, text)
}

// Community is one detected entity cluster with its member node ids and
// the chunk ids that mention those entities.
type Community struct {
	ID          int      `json:"id"`
	EntityNodes []string `json:"entity_nodes"`
	ChunkIDs    []int64  `json:"chunk_ids"`
}

// CommunitySummary is the summarizer's output for one qualifying community.
type CommunitySummary struct {
	CommunityID  int      `json:"community_id"`
	Summary      string   `json:"summary"`
	Entities     []string `json:"entities"`
	KeyRelations []string `json:"key_relations"`
	NumEntities  int      `json:"num_entities"`
	NumChunks    int      `json:"num_chunks"`
}

// RunCounts aggregates the output sizes of one processing run.
type RunCounts struct {
	Nodes       int `json:"num_nodes"`
	Edges       int `json:"num_edges"`
	Triples     int `json:"num_triples"`
	Communities int `json:"num_communities"`
}

// RunManifest describes one completed processing run. Artifacts maps
// logical artifact names (edges, nodes, summaries, triples) to
// sink-specific locations. A manifest is only committed after every
// artifact it names is durably written.
type RunManifest struct {
	RunID     string            `json:"run_id"`
	Timestamp time.Time         `json:"timestamp"`
	Counts    RunCounts         `json:"counts"`
	Artifacts map[string]string `json:"artifacts"`
}
