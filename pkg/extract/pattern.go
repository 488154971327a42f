package extract

import (
	"context"
	"strings"
	"unicode"

	"github.com/ontolab/graphweave/pkg/common"
)

// PatternRelationExtractor is the grammar-pattern fallback used when the
// oracle extractor errors or finds nothing. It matches two patterns per
// sentence: noun phrase - verb phrase - noun phrase, and noun phrase -
// preposition - noun phrase. Noun phrases are anchored on recognized
// entity surfaces and capitalized token runs. Fully deterministic, no
// oracle involved.
type PatternRelationExtractor struct{}

func (PatternRelationExtractor) Name() string { return "pattern" }

func (PatternRelationExtractor) Extract(
	ctx context.Context,
	text string,
	entities map[string][]string,
) ([]common.Triple, error) {
	surfaces := knownSurfaces(entities)

	var triples []common.Triple
	for _, sentence := range splitSentences(text) {
		triples = append(triples, patternTriples(sentence, surfaces)...)
	}
	return cleanTriples(triples), nil
}

var verbStopwords = map[string]bool{
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"has": true, "have": true, "had": true, "will": true, "would": true,
	"can": true, "could": true, "does": true, "did": true, "became": true,
}

var prepositions = map[string]bool{
	"of": true, "in": true, "on": true, "at": true, "for": true, "with": true,
	"from": true, "by": true, "to": true, "near": true, "under": true, "over": true,
}

func knownSurfaces(entities map[string][]string) map[string]bool {
	out := make(map[string]bool)
	for _, list := range entities {
		for _, s := range list {
			out[s] = true
		}
	}
	return out
}

// span is a half-open token range [start, end) covering one noun phrase.
type span struct {
	start, end int
}

func patternTriples(sentence string, surfaces map[string]bool) []common.Triple {
	tokens := tokenize(sentence)
	if len(tokens) < 3 {
		return nil
	}

	spans := nounPhraseSpans(tokens, surfaces)
	if len(spans) < 2 {
		return nil
	}

	phrase := func(s span) string {
		return strings.Join(tokens[s.start:s.end], " ")
	}

	var triples []common.Triple
	for i := 0; i+1 < len(spans); i++ {
		left, right := spans[i], spans[i+1]
		gap := tokens[left.end:right.start]

		switch {
		case len(gap) >= 1 && len(gap) <= 4 && isVerbLike(gap[0]):
			triples = append(triples, common.Triple{
				Subject:  phrase(left),
				Relation: strings.Join(gap, " "),
				Object:   phrase(right),
			})
		case len(gap) == 1 && prepositions[strings.ToLower(gap[0])]:
			triples = append(triples, common.Triple{
				Subject:  phrase(left),
				Relation: strings.ToLower(gap[0]),
				Object:   phrase(right),
			})
		}
	}
	return triples
}

// nounPhraseSpans returns non-overlapping noun phrase spans in token
// order. Known entity surfaces are matched first (longest wins), then
// maximal capitalized runs fill the rest.
func nounPhraseSpans(tokens []string, surfaces map[string]bool) []span {
	claimed := make([]bool, len(tokens))
	var spans []span

	claim := func(s span) {
		for i := s.start; i < s.end; i++ {
			claimed[i] = true
		}
		spans = append(spans, s)
	}

	// entity surfaces, longest match first at each position
	for i := 0; i < len(tokens); i++ {
		if claimed[i] {
			continue
		}
		best := -1
		for j := len(tokens); j > i; j-- {
			if claimed[j-1] {
				continue
			}
			if surfaces[strings.Join(tokens[i:j], " ")] {
				best = j
				break
			}
		}
		if best > 0 {
			claim(span{start: i, end: best})
			i = best - 1
		}
	}

	// capitalized runs over unclaimed tokens
	for i := 0; i < len(tokens); i++ {
		if claimed[i] || !isCapitalized(tokens[i]) {
			continue
		}
		j := i
		for j < len(tokens) && !claimed[j] && isCapitalized(tokens[j]) {
			j++
		}
		claim(span{start: i, end: j})
		i = j - 1
	}

	// restore sentence order after the two passes
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j].start < spans[j-1].start; j-- {
			spans[j], spans[j-1] = spans[j-1], spans[j]
		}
	}
	return spans
}

func tokenize(sentence string) []string {
	fields := strings.Fields(sentence)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isCapitalized(token string) bool {
	for _, r := range token {
		return unicode.IsUpper(r)
	}
	return false
}

// isVerbLike accepts common auxiliaries and lowercase words with verbal
// suffixes. Noun phrase tokens are capitalized, so requiring lowercase
// keeps phrase fragments out of the relation slot.
func isVerbLike(token string) bool {
	lower := strings.ToLower(token)
	if verbStopwords[lower] {
		return true
	}
	if token != lower {
		return false
	}
	if len(token) > 4 && (strings.HasSuffix(token, "ed") || strings.HasSuffix(token, "ing")) {
		return true
	}
	if len(token) > 3 && strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss") {
		return true
	}
	return false
}

// splitSentences breaks text into sentences on terminal punctuation,
// keeping numeric listings ("1. First item") inside one sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	line := strings.Join(strings.Fields(text), " ")
	for i := 0; i < len(line); i++ {
		current.WriteByte(line[i])

		if line[i] == '.' || line[i] == '!' || line[i] == '?' {
			isNumericListing := false
			if i > 0 && unicode.IsDigit(rune(line[i-1])) {
				if i+1 < len(line) && line[i+1] == ' ' {
					isNumericListing = true
				}
			}
			if isNumericListing {
				continue
			}

			j := i + 1
			for j < len(line) && (line[j] == '.' || line[j] == '!' || line[j] == '?') {
				current.WriteByte(line[j])
				j++
			}
			for j < len(line) && (line[j] == '"' || line[j] == '\'' || line[j] == ')' ||
				line[j] == ']' || line[j] == '}') {
				current.WriteByte(line[j])
				j++
			}

			flush()
			i = j - 1
		}
	}

	flush()
	return sentences
}
