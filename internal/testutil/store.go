package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/boarding/internal/model"
	"github.com/roach88/boarding/internal/store"
)

// OpenStore opens a file-backed store in t.TempDir() and closes it when
// the test finishes.
func OpenStore(t testing.TB, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "boarding.db"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Buses is a small resource directory used across tests.
func Buses() []model.Resource {
	return []model.Resource{
		{ResourceID: "bus-1", Name: "North Line", Capacity: 2},
		{ResourceID: "bus-2", Name: "South Line", Capacity: 1},
		{ResourceID: "bus-3", Name: "Shuttle", Capacity: 0},
	}
}

// SeedResources installs resources directly in the store.
func SeedResources(t testing.TB, s *store.Store, resources ...model.Resource) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx *store.Tx) error {
		for _, r := range resources {
			if err := tx.UpsertResource(context.Background(), r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed resources: %v", err)
	}
}
