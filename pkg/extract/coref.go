package extract

import (
	"sort"
)

// resolveCoreferences rewrites text so every mention in a chain reads as
// the chain's representative form. The representative is the first
// mention that matches a recognized named entity; when no mention does,
// the first mention stands. Replacements are applied in reverse offset
// order so earlier spans stay valid.
func resolveCoreferences(text string, chains []nerCorefChain, entities map[string][]string) string {
	named := make(map[string]bool)
	for _, surfaces := range entities {
		for _, s := range surfaces {
			named[s] = true
		}
	}

	type replacement struct {
		start, end  int
		replacement string
	}
	var replacements []replacement

	for _, chain := range chains {
		mentions := validMentions(text, chain.Mentions)
		if len(mentions) < 2 {
			continue
		}

		representative := ""
		for _, m := range mentions {
			if named[m.Text] {
				representative = m.Text
				break
			}
		}
		if representative == "" {
			representative = mentions[0].Text
		}

		for _, m := range mentions {
			if m.Text == representative {
				continue
			}
			replacements = append(replacements, replacement{
				start:       m.Start,
				end:         m.End,
				replacement: representative,
			})
		}
	}

	if len(replacements) == 0 {
		return text
	}

	sort.Slice(replacements, func(i, j int) bool {
		return replacements[i].start > replacements[j].start
	})

	resolved := text
	prevStart := len(text) + 1
	for _, r := range replacements {
		// overlapping spans would corrupt offsets; keep the later one
		if r.end > prevStart {
			continue
		}
		resolved = resolved[:r.start] + r.replacement + resolved[r.end:]
		prevStart = r.start
	}
	return resolved
}

// validMentions keeps only mentions whose offsets actually address their
// own text. Oracle-reported offsets are untrusted input.
func validMentions(text string, mentions []nerMention) []nerMention {
	out := make([]nerMention, 0, len(mentions))
	for _, m := range mentions {
		if m.Text == "" || m.Start < 0 || m.End <= m.Start || m.End > len(text) {
			continue
		}
		if text[m.Start:m.End] != m.Text {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
