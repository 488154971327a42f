package pgx

import (
	"strings"
	"testing"
)

func TestInitMigrationIndexesTripleColumns(t *testing.T) {
	raw, err := migrationsFS.ReadFile("migrations/000001_init.up.sql")
	if err != nil {
		t.Fatalf("embedded migration missing: %v", err)
	}
	sql := string(raw)

	for _, idx := range []string{
		"idx_graph_triples_chunk",
		"idx_graph_triples_subject",
		"idx_graph_triples_object",
		"idx_graph_triples_relation",
	} {
		if !strings.Contains(sql, idx) {
			t.Fatalf("expected triples index %s in init migration", idx)
		}
	}
}
