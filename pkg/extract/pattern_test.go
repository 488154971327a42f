package extract

import (
	"context"
	"reflect"
	"testing"

	"github.com/ontolab/graphweave/pkg/common"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "terminal punctuation",
			text: "First sentence. Second one! A third?",
			want: []string{"First sentence.", "Second one!", "A third?"},
		},
		{
			name: "numeric listing stays together",
			text: "There are 2. 5 reasons to go.",
			want: []string{"There are 2. 5 reasons to go."},
		},
		{
			name: "trailing quote absorbed",
			text: `He said "Stop." Then he left.`,
			want: []string{`He said "Stop."`, "Then he left."},
		},
		{
			name: "collapses whitespace",
			text: "One\n\ntwo.   Three.",
			want: []string{"One two.", "Three."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitSentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPatternExtractor_SubjectVerbObject(t *testing.T) {
	e := PatternRelationExtractor{}
	entities := map[string][]string{
		"PERSON":       {"Marie Curie"},
		"ORGANIZATION": {"Sorbonne"},
	}

	triples, err := e.Extract(context.Background(), "Marie Curie works at Sorbonne.", entities)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []common.Triple{{Subject: "Marie Curie", Relation: "works at", Object: "Sorbonne"}}
	if !reflect.DeepEqual(triples, want) {
		t.Fatalf("expected %v, got %v", want, triples)
	}
}

func TestPatternExtractor_PrepositionPattern(t *testing.T) {
	e := PatternRelationExtractor{}

	triples, err := e.Extract(context.Background(), "Paris in France.", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []common.Triple{{Subject: "Paris", Relation: "in", Object: "France"}}
	if !reflect.DeepEqual(triples, want) {
		t.Fatalf("expected %v, got %v", want, triples)
	}
}

func TestPatternExtractor_CapitalizedRunsAsPhrases(t *testing.T) {
	e := PatternRelationExtractor{}

	triples, err := e.Extract(context.Background(), "Ada Lovelace described the Analytical Engine.", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, tr := range triples {
		if tr.Subject == "Ada Lovelace" && tr.Relation == "described the" && tr.Object == "Analytical Engine" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Ada Lovelace triple, got %v", triples)
	}
}

func TestPatternExtractor_NoPhrasesNoTriples(t *testing.T) {
	e := PatternRelationExtractor{}

	triples, err := e.Extract(context.Background(), "nothing notable happened here.", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triples) != 0 {
		t.Fatalf("expected no triples, got %v", triples)
	}
}

func TestIsVerbLike(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"was", true},
		{"reported", true},
		{"teaches", true},
		{"running", true},
		{"Paris", false},
		{"glass", false},
		{"in", false},
	}
	for _, tt := range tests {
		if got := isVerbLike(tt.token); got != tt.want {
			t.Errorf("isVerbLike(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}
