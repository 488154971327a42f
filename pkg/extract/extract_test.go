package extract

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ontolab/graphweave/pkg/ai"
	"github.com/ontolab/graphweave/pkg/common"
)

// stubAIClient answers the two schema-constrained extraction calls with
// canned responses.
type stubAIClient struct {
	ner    nerResponse
	nerErr error
	rel    relationResponse
	relErr error
}

func (s *stubAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	switch name {
	case "extract_entities":
		if s.nerErr != nil {
			return s.nerErr
		}
		*out.(*nerResponse) = s.ner
		return nil
	case "extract_relations":
		if s.relErr != nil {
			return s.relErr
		}
		*out.(*relationResponse) = s.rel
		return nil
	}
	return errors.New("unexpected format call: " + name)
}

func (s *stubAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func TestCollectEntities_FiltersAndDeduplicates(t *testing.T) {
	groups := []nerEntityGroup{
		{Type: "person", Surfaces: []string{"Alice", "Alice", "B", "  ", "--"}},
		{Type: "PERSON", Surfaces: []string{"Bob"}},
		{Type: "ORGANIZATION", Surfaces: []string{"!!"}},
	}

	entities := collectEntities(groups)
	want := map[string][]string{
		"PERSON": {"Alice", "Bob"},
	}
	if !reflect.DeepEqual(entities, want) {
		t.Fatalf("expected %v, got %v", want, entities)
	}
}

func TestResolveCoreferences_NamedRepresentativeWins(t *testing.T) {
	text := "Alice went home. She slept."
	chains := []nerCorefChain{{Mentions: []nerMention{
		{Text: "Alice", Start: 0, End: 5},
		{Text: "She", Start: 17, End: 20},
	}}}
	entities := map[string][]string{"PERSON": {"Alice"}}

	resolved := resolveCoreferences(text, chains, entities)
	if resolved != "Alice went home. Alice slept." {
		t.Fatalf("unexpected resolution: %q", resolved)
	}
}

func TestResolveCoreferences_FirstMentionWhenNoNamedMatch(t *testing.T) {
	text := "The ship sailed. It sank."
	chains := []nerCorefChain{{Mentions: []nerMention{
		{Text: "The ship", Start: 0, End: 8},
		{Text: "It", Start: 17, End: 19},
	}}}

	resolved := resolveCoreferences(text, chains, nil)
	if resolved != "The ship sailed. The ship sank." {
		t.Fatalf("unexpected resolution: %q", resolved)
	}
}

func TestResolveCoreferences_InvalidOffsetsIgnored(t *testing.T) {
	text := "Alice went home."
	chains := []nerCorefChain{{Mentions: []nerMention{
		{Text: "Alice", Start: 0, End: 5},
		{Text: "She", Start: 40, End: 43},
		{Text: "Bob", Start: 0, End: 3},
	}}}

	// only one valid mention remains, so nothing is rewritten
	resolved := resolveCoreferences(text, chains, nil)
	if resolved != text {
		t.Fatalf("expected text unchanged, got %q", resolved)
	}
}

func TestExtractChunk_EmptyTextYieldsNothing(t *testing.T) {
	e := NewExtractor(NewExtractorParams{Client: &stubAIClient{}})

	res, err := e.ExtractChunk(context.Background(), common.Chunk{ID: 1, Text: "   \n "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entities) != 0 || len(res.Triples) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestExtractChunk_OracleFailureFallsBackToPatterns(t *testing.T) {
	client := &stubAIClient{
		ner: nerResponse{Entities: []nerEntityGroup{
			{Type: "PERSON", Surfaces: []string{"Alice"}},
			{Type: "ORGANIZATION", Surfaces: []string{"Google"}},
		}},
		relErr: errors.New("oracle unavailable"),
	}
	e := NewExtractor(NewExtractorParams{Client: client, MaxRetries: 1})

	res, err := e.ExtractChunk(context.Background(), common.Chunk{ID: 7, Text: "Alice works at Google."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []common.Triple{{Subject: "Alice", Relation: "works at", Object: "Google", ChunkID: 7}}
	if !reflect.DeepEqual(res.Triples, want) {
		t.Fatalf("expected %v, got %v", want, res.Triples)
	}
}

func TestExtractChunk_OracleTriplesWin(t *testing.T) {
	client := &stubAIClient{
		ner: nerResponse{Entities: []nerEntityGroup{
			{Type: "PERSON", Surfaces: []string{"Alice"}},
		}},
		rel: relationResponse{Triples: []relationTriple{
			{Subject: "Alice", Relation: "founded", Object: "the lab"},
		}},
	}
	e := NewExtractor(NewExtractorParams{Client: client, MaxRetries: 1})

	res, err := e.ExtractChunk(context.Background(), common.Chunk{ID: 3, Text: "Alice founded the lab."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []common.Triple{{Subject: "Alice", Relation: "founded", Object: "the lab", ChunkID: 3}}
	if !reflect.DeepEqual(res.Triples, want) {
		t.Fatalf("expected %v, got %v", want, res.Triples)
	}
}

func TestExtractChunk_NERFailureIsFatal(t *testing.T) {
	client := &stubAIClient{nerErr: errors.New("oracle down")}
	e := NewExtractor(NewExtractorParams{Client: client, MaxRetries: 1})

	if _, err := e.ExtractChunk(context.Background(), common.Chunk{ID: 1, Text: "some text"}); err == nil {
		t.Fatal("expected error when entity extraction fails")
	}
}

func TestCleanTriples_DropsDegenerate(t *testing.T) {
	in := []common.Triple{
		{Subject: " Alice ", Relation: "knows", Object: "Bob"},
		{Subject: "Alice", Relation: "is", Object: "Alice"},
		{Subject: "", Relation: "x", Object: "y"},
	}
	got := cleanTriples(in)
	want := []common.Triple{{Subject: "Alice", Relation: "knows", Object: "Bob"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
