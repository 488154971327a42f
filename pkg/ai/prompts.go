package ai

// NERPrompt asks the extraction oracle for named entities grouped by type
// and for coreference chains over the same text. The chains are applied
// locally; the oracle only reports mention spans.
const NERPrompt = `
# Task Context
You are an information extraction assistant. You will be given a passage of text from a document corpus.

# Detailed Task Description & Rules
- Identify every named entity in the text and assign it one of these types: %s.
- Report each distinct surface form once per type, exactly as it appears in the text.
- Skip surface forms shorter than two characters or containing no letters or digits.
- Additionally, report coreference chains: groups of mentions in the text that refer to the same thing (for example "the United Nations", "the organization", "it").
- For each mention report its exact text and its character offsets (start inclusive, end exclusive) in the provided passage.

# Output Formatting
Return a JSON object with an "entities" list ({"type": ..., "surfaces": [...]}) and a "coref_chains" list of mention groups.
`

// RelationPrompt asks the open-domain triple extractor for
// subject-relation-object facts from resolved text.
const RelationPrompt = `
# Task Context
You are an open-domain relation extraction assistant. You will be given a passage of text in which repeated mentions have already been resolved to one representative form.

# Detailed Task Description & Rules
- Extract factual subject-relation-object triples stated in the text.
- Use short noun phrases for subjects and objects, exactly as they appear in the text.
- Use a short verb or preposition phrase for the relation.
- Only extract relations the text actually states. Do not infer.
- Return an empty list when the text states no extractable relations.

# Output Formatting
Return a JSON object with a "triples" list ({"subject": ..., "relation": ..., "object": ...}).
`

// SummaryPrompt is the structured prompt for community summaries. Filled
// with entity list, key relations and chunk context, in that order.
const SummaryPrompt = `
Generate a concise summary about the following group of related entities based on the provided context.

Key Entities:
%s

Key Relations:
%s

Context:
%s

Provide a 2-3 sentence summary that explains the main theme connecting these entities and their significance. Focus on the relationships and patterns you observe.
`

// SummarySystemPrompt frames the summarizer's role.
const SummarySystemPrompt = `You are a helpful assistant that creates concise summaries of entity relationships.`
