package summarize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/errgroup"

	"github.com/ontolab/graphweave/internal/util"
	"github.com/ontolab/graphweave/pkg/ai"
	"github.com/ontolab/graphweave/pkg/common"
	"github.com/ontolab/graphweave/pkg/graph"
	"github.com/ontolab/graphweave/pkg/logger"
)

const (
	maxPromptEntities  = 20
	maxPromptRelations = 10
	maxPromptChunks    = 3
	maxKeyRelations    = 5
	fallbackEntities   = 5

	defaultContextTokenBudget = 1500
	defaultParallel           = 4
	tokenEncoding             = "o200k_base"

	// summaries tolerate a little variation but should stay grounded
	summaryTemperature = 0.5
)

// Summarizer produces natural-language summaries for detected communities.
// Oracle failures degrade to a templated summary, so every qualifying
// community yields output.
type Summarizer struct {
	client             ai.GraphAIClient
	maxRetries         int
	parallel           int
	contextTokenBudget int
	thinking           string
}

// NewSummarizerParams configures a Summarizer.
//
// Thinking selects the generation model's reasoning mode for summary
// prompts; empty leaves reasoning off.
type NewSummarizerParams struct {
	Client             ai.GraphAIClient
	MaxRetries         int
	Parallel           int
	ContextTokenBudget int
	Thinking           string
}

func NewSummarizer(params NewSummarizerParams) *Summarizer {
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	parallel := params.Parallel
	if parallel <= 0 {
		parallel = defaultParallel
	}
	budget := params.ContextTokenBudget
	if budget <= 0 {
		budget = defaultContextTokenBudget
	}
	return &Summarizer{
		client:             params.Client,
		maxRetries:         maxRetries,
		parallel:           parallel,
		contextTokenBudget: budget,
		thinking:           params.Thinking,
	}
}

// SummarizeCommunities summarizes every community concurrently and returns
// results ordered by community ID.
func (s *Summarizer) SummarizeCommunities(ctx context.Context, b *graph.Builder, communities []common.Community) []common.CommunitySummary {
	summaries := make([]common.CommunitySummary, len(communities))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.parallel)
	for i, comm := range communities {
		eg.Go(func() error {
			summaries[i] = s.summarizeCommunity(egCtx, b, comm)
			return nil
		})
	}
	_ = eg.Wait()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CommunityID < summaries[j].CommunityID
	})
	return summaries
}

func (s *Summarizer) summarizeCommunity(ctx context.Context, b *graph.Builder, comm common.Community) common.CommunitySummary {
	entities := topEntities(b, comm, maxPromptEntities)
	relations := keyRelations(b, comm, maxPromptRelations)

	summary, err := s.generateSummary(ctx, b, comm, entities, relations)
	if err != nil {
		logger.Warn("[Summarize] Oracle summary failed, using template", "community", comm.ID, "error", err)
		summary = fallbackSummary(entities, len(comm.EntityNodes))
	}

	return common.CommunitySummary{
		CommunityID:  comm.ID,
		Summary:      strings.TrimSpace(summary),
		Entities:     entityTexts(entities),
		KeyRelations: relations[:util.Min(maxKeyRelations, len(relations))],
		NumEntities:  len(comm.EntityNodes),
		NumChunks:    len(comm.ChunkIDs),
	}
}

func (s *Summarizer) generateSummary(ctx context.Context, b *graph.Builder, comm common.Community, entities []rankedEntity, relations []string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("no generation client configured")
	}

	entityLines := make([]string, len(entities))
	for i, e := range entities {
		entityLines[i] = fmt.Sprintf("- %s (%s)", e.node.Text, e.node.EntityType)
	}
	relationLines := make([]string, len(relations))
	for i, r := range relations {
		relationLines[i] = "- " + r
	}
	if len(relationLines) == 0 {
		relationLines = []string{"- (no explicit relations recorded)"}
	}

	prompt := fmt.Sprintf(ai.SummaryPrompt,
		strings.Join(entityLines, "\n"),
		strings.Join(relationLines, "\n"),
		s.chunkContext(b, comm),
	)

	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(ai.SummarySystemPrompt),
		ai.WithTemperature(summaryTemperature),
	}
	if s.thinking != "" {
		opts = append(opts, ai.WithThinking(s.thinking))
	}

	return util.RetryWithContext(ctx, s.maxRetries, func(ctx context.Context) (string, error) {
		return s.client.GenerateCompletion(ctx, prompt, opts...)
	})
}

// chunkContext joins up to three member chunk excerpts, trimmed to the
// token budget so community size cannot blow up the prompt.
func (s *Summarizer) chunkContext(b *graph.Builder, comm common.Community) string {
	var parts []string
	for _, chunkID := range comm.ChunkIDs {
		if len(parts) >= maxPromptChunks {
			break
		}
		excerpt := b.ChunkExcerpt(chunkID)
		if excerpt == "" {
			continue
		}
		parts = append(parts, excerpt)
	}
	if len(parts) == 0 {
		return "(no source context available)"
	}
	return trimToTokens(strings.Join(parts, "\n---\n"), s.contextTokenBudget)
}

func trimToTokens(text string, budget int) string {
	enc, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		// No encoder available; fall back to a crude rune budget.
		return util.TruncateRunes(text, budget*4)
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return enc.Decode(tokens[:budget])
}

type rankedEntity struct {
	node   common.Node
	degree int
}

// topEntities ranks a community's entity nodes by degree, ties broken by
// node ID for stable output.
func topEntities(b *graph.Builder, comm common.Community, limit int) []rankedEntity {
	ranked := make([]rankedEntity, 0, len(comm.EntityNodes))
	for _, id := range comm.EntityNodes {
		node, ok := b.Node(id)
		if !ok {
			continue
		}
		ranked = append(ranked, rankedEntity{node: node, degree: len(b.Neighbors(id))})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].degree != ranked[j].degree {
			return ranked[i].degree > ranked[j].degree
		}
		return ranked[i].node.ID < ranked[j].node.ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func entityTexts(entities []rankedEntity) []string {
	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = e.node.Text
	}
	return texts
}

// keyRelations collects intra-community extracted relations, heaviest
// first. Provenance edges are not evidence and are skipped.
func keyRelations(b *graph.Builder, comm common.Community, limit int) []string {
	members := make(map[string]bool, len(comm.EntityNodes))
	for _, id := range comm.EntityNodes {
		members[id] = true
	}

	var edges []common.Edge
	for _, e := range b.Edges() {
		if e.Relation == common.RelationMentions {
			continue
		}
		if !members[e.Source] || !members[e.Target] {
			continue
		}
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	if len(edges) > limit {
		edges = edges[:limit]
	}

	relations := make([]string, len(edges))
	for i, e := range edges {
		relations[i] = fmt.Sprintf("%s - %s - %s", nodeText(b, e.Source), e.Relation, nodeText(b, e.Target))
	}
	return relations
}

func nodeText(b *graph.Builder, id string) string {
	if node, ok := b.Node(id); ok {
		return node.Text
	}
	return id
}

func fallbackSummary(entities []rankedEntity, total int) string {
	names := make([]string, 0, fallbackEntities)
	for _, e := range entities {
		if len(names) >= fallbackEntities {
			break
		}
		names = append(names, e.node.Text)
	}
	return fmt.Sprintf("Community of %d entities including: %s", total, strings.Join(names, ", "))
}
