package extract

import (
	"context"

	"github.com/ontolab/graphweave/internal/util"
	"github.com/ontolab/graphweave/pkg/ai"
	"github.com/ontolab/graphweave/pkg/common"
)

// RelationExtractor extracts subject-relation-object triples from resolved
// text. Implementations are tried in ranked order; returning an error or
// an empty result hands the text to the next extractor in the chain.
type RelationExtractor interface {
	Name() string
	Extract(ctx context.Context, text string, entities map[string][]string) ([]common.Triple, error)
}

type relationTriple struct {
	Subject  string `json:"subject" jsonschema_description:"Subject noun phrase, exactly as it appears in the text"`
	Relation string `json:"relation" jsonschema_description:"Short verb or preposition phrase linking subject and object"`
	Object   string `json:"object" jsonschema_description:"Object noun phrase, exactly as it appears in the text"`
}

type relationResponse struct {
	Triples []relationTriple `json:"triples" jsonschema_description:"Subject-relation-object facts stated in the text"`
}

// OracleRelationExtractor is the primary open-domain triple extractor,
// backed by the schema-constrained extraction oracle.
type OracleRelationExtractor struct {
	Client     ai.GraphAIClient
	MaxRetries int
}

func (e *OracleRelationExtractor) Name() string { return "oracle" }

func (e *OracleRelationExtractor) Extract(
	ctx context.Context,
	text string,
	entities map[string][]string,
) ([]common.Triple, error) {
	var res relationResponse
	err := util.RetryErrWithContext(ctx, e.MaxRetries, func(ctx context.Context) error {
		return e.Client.GenerateCompletionWithFormat(
			ctx,
			"extract_relations",
			"Extract subject-relation-object triples from a text passage.",
			text,
			&res,
			ai.WithSystemPrompts(ai.RelationPrompt),
		)
	})
	if err != nil {
		return nil, err
	}

	triples := make([]common.Triple, 0, len(res.Triples))
	for _, t := range res.Triples {
		triples = append(triples, common.Triple{
			Subject:  t.Subject,
			Relation: t.Relation,
			Object:   t.Object,
		})
	}
	return cleanTriples(triples), nil
}
