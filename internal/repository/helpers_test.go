package repository

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"

	"github.com/roach88/entitymap/internal/ir"
	"github.com/roach88/entitymap/internal/store"
	"github.com/roach88/entitymap/internal/testutil"
)

var quiet = slog.New(slog.DiscardHandler)

// newMemory returns a memory repository seeded with the fixture animals.
func newMemory(t *testing.T, opts ...RepositoryOption) Repository {
	t.Helper()
	return NewMemory(testutil.Animals(), append([]RepositoryOption{WithLogger(quiet)}, opts...)...)
}

// newRelational returns a SQLite-backed repository seeded with the fixture
// animals.
func newRelational(t *testing.T, opts ...RepositoryOption) Repository {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	table := testutil.AnimalTable()
	require.NoError(t, s.CreateTables(context.Background(), table))

	repo := NewRelational(s, table, testutil.AnimalMapping(t), append([]RepositoryOption{WithLogger(quiet)}, opts...)...)
	_, err = repo.CreateMany(context.Background(), testutil.Animals())
	require.NoError(t, err)
	return repo
}

var backends = map[string]func(*testing.T, ...RepositoryOption) Repository{
	"memory":     newMemory,
	"relational": newRelational,
}

func ids(docs []ir.Document) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = d["id"]
	}
	return out
}

// counter reads a counter value from a test scope by name.
func counter(scope tally.TestScope, name string) int64 {
	for _, c := range scope.Snapshot().Counters() {
		if c.Name() == name {
			return c.Value()
		}
	}
	return 0
}
