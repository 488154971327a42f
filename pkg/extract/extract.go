package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ontolab/graphweave/internal/util"
	"github.com/ontolab/graphweave/pkg/ai"
	"github.com/ontolab/graphweave/pkg/common"
	"github.com/ontolab/graphweave/pkg/logger"
)

// DefaultEntityTypes is the type inventory offered to the NER oracle when
// the caller does not supply its own.
var DefaultEntityTypes = []string{
	"PERSON", "ORGANIZATION", "LOCATION", "DATE", "EVENT", "PRODUCT", "CONCEPT", "CREATIVE_WORK",
}

const defaultMaxChars = 10000

// Result holds everything extracted from a single chunk: distinct entity
// surfaces grouped by type, the coreference-resolved text, and the triples
// pulled from that text.
type Result struct {
	Entities     map[string][]string
	ResolvedText string
	Triples      []common.Triple
}

// Extractor runs per-chunk entity and relation extraction. Relation
// extraction walks a ranked chain: the first extractor producing a
// non-empty result wins, so an oracle failure degrades to grammar
// patterns instead of losing the chunk.
type Extractor struct {
	client        ai.GraphAIClient
	entityTypes   []string
	maxChars      int
	maxRetries    int
	relExtractors []RelationExtractor
}

// NewExtractorParams configures an Extractor.
type NewExtractorParams struct {
	Client      ai.GraphAIClient
	EntityTypes []string
	MaxChars    int
	MaxRetries  int
}

// NewExtractor creates an Extractor with the oracle extractor first and
// the grammar-pattern extractor as fallback.
func NewExtractor(params NewExtractorParams) *Extractor {
	entityTypes := params.EntityTypes
	if len(entityTypes) == 0 {
		entityTypes = DefaultEntityTypes
	}
	maxChars := params.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Extractor{
		client:      params.Client,
		entityTypes: entityTypes,
		maxChars:    maxChars,
		maxRetries:  maxRetries,
		relExtractors: []RelationExtractor{
			&OracleRelationExtractor{Client: params.Client, MaxRetries: maxRetries},
			&PatternRelationExtractor{},
		},
	}
}

type nerEntityGroup struct {
	Type     string   `json:"type" jsonschema_description:"Entity type label from the provided inventory"`
	Surfaces []string `json:"surfaces" jsonschema_description:"Distinct surface forms of this type, exactly as they appear in the text"`
}

type nerMention struct {
	Text  string `json:"text" jsonschema_description:"Exact mention text"`
	Start int    `json:"start" jsonschema_description:"Start character offset, inclusive"`
	End   int    `json:"end" jsonschema_description:"End character offset, exclusive"`
}

type nerCorefChain struct {
	Mentions []nerMention `json:"mentions" jsonschema_description:"Mentions referring to the same thing, in order of appearance"`
}

type nerResponse struct {
	Entities    []nerEntityGroup `json:"entities" jsonschema_description:"Named entities grouped by type"`
	CorefChains []nerCorefChain  `json:"coref_chains" jsonschema_description:"Coreference chains over the text"`
}

// ExtractChunk extracts entities and triples from one chunk's text. The
// text is truncated deterministically to the configured maximum before any
// oracle sees it.
func (e *Extractor) ExtractChunk(ctx context.Context, chunk common.Chunk) (*Result, error) {
	text := util.TruncateRunes(chunk.Text, e.maxChars)
	if strings.TrimSpace(text) == "" {
		return &Result{Entities: map[string][]string{}, ResolvedText: text}, nil
	}

	res, err := e.callNEROracle(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ner extraction failed for chunk %d: %w", chunk.ID, err)
	}

	entities := collectEntities(res.Entities)
	resolved := resolveCoreferences(text, res.CorefChains, entities)

	triples := e.extractRelations(ctx, resolved, entities)
	for i := range triples {
		triples[i].ChunkID = chunk.ID
	}

	return &Result{
		Entities:     entities,
		ResolvedText: resolved,
		Triples:      triples,
	}, nil
}

func (e *Extractor) callNEROracle(ctx context.Context, text string) (*nerResponse, error) {
	systemPrompt := fmt.Sprintf(ai.NERPrompt, strings.Join(e.entityTypes, ", "))

	var res nerResponse
	err := util.RetryErrWithContext(ctx, e.maxRetries, func(ctx context.Context) error {
		return e.client.GenerateCompletionWithFormat(
			ctx,
			"extract_entities",
			"Extract named entities and coreference chains from a text passage.",
			text,
			&res,
			ai.WithSystemPrompts(systemPrompt),
		)
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// extractRelations walks the ranked extractor chain. An extractor that
// errors or returns nothing yields to the next one; the chain itself
// never fails.
func (e *Extractor) extractRelations(ctx context.Context, text string, entities map[string][]string) []common.Triple {
	for _, re := range e.relExtractors {
		triples, err := re.Extract(ctx, text, entities)
		if err != nil {
			logger.Warn("[Extract] Relation extractor failed, trying next", "extractor", re.Name(), "err", err)
			continue
		}
		if len(triples) == 0 {
			logger.Debug("[Extract] Relation extractor returned nothing, trying next", "extractor", re.Name())
			continue
		}
		return triples
	}
	return nil
}

// collectEntities filters and de-duplicates oracle surfaces: at least two
// characters, at least one letter or digit, distinct per type.
func collectEntities(groups []nerEntityGroup) map[string][]string {
	entities := make(map[string][]string)
	for _, group := range groups {
		entityType := ai.NormalizeSurface(group.Type)
		if entityType == "" {
			continue
		}
		entityType = strings.ToUpper(entityType)

		seen := make(map[string]bool)
		for _, existing := range entities[entityType] {
			seen[existing] = true
		}
		for _, surface := range group.Surfaces {
			surface = ai.NormalizeSurface(surface)
			if len([]rune(surface)) < 2 || !util.HasAlnum(surface) {
				continue
			}
			if seen[surface] {
				continue
			}
			seen[surface] = true
			entities[entityType] = append(entities[entityType], surface)
		}
	}
	for entityType, surfaces := range entities {
		if len(surfaces) == 0 {
			delete(entities, entityType)
		}
	}
	return entities
}

// cleanTriples normalizes and drops degenerate triples.
func cleanTriples(triples []common.Triple) []common.Triple {
	out := make([]common.Triple, 0, len(triples))
	for _, t := range triples {
		t.Subject = ai.NormalizeSurface(t.Subject)
		t.Relation = ai.NormalizeSurface(t.Relation)
		t.Object = ai.NormalizeSurface(t.Object)
		if t.Subject == "" || t.Relation == "" || t.Object == "" {
			continue
		}
		if t.Subject == t.Object {
			continue
		}
		out = append(out, t)
	}
	return out
}
