package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/mapper"
	"github.com/roach88/entitymap/internal/querysql"
	"github.com/roach88/entitymap/internal/testutil"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seededStore creates the animal tables and saves the fixture animals.
func seededStore(t *testing.T) (*Store, *querysql.Table) {
	t.Helper()
	s := createTestStore(t)
	table := testutil.AnimalTable()
	require.NoError(t, s.CreateTables(context.Background(), table))
	require.NoError(t, s.Save(context.Background(), table, animalEntities(t)))
	return s, table
}

// animalEntities maps the fixture animals into entity space.
func animalEntities(t *testing.T) []ir.Document {
	t.Helper()
	m := mapper.New(testutil.AnimalMapping(t))
	var out []ir.Document
	for _, animal := range testutil.Animals() {
		entity, err := m.MapDetachedObjectToEntity(animal)
		require.NoError(t, err)
		out = append(out, entity)
	}
	return out
}

func names(docs []ir.Document) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d["animal_name"]
	}
	return out
}
