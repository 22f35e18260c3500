package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/boarding/internal/model"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustTx runs fn in a transaction and fails the test on error.
func mustTx(t *testing.T, s *Store, fn func(*Tx) error) {
	t.Helper()
	if err := s.WithTx(context.Background(), fn); err != nil {
		t.Fatalf("WithTx() failed: %v", err)
	}
}

// seedQueue appends subjects in order starting at position 1.
func seedQueue(t *testing.T, s *Store, subjects ...string) {
	t.Helper()
	ctx := context.Background()
	mustTx(t, s, func(tx *Tx) error {
		for i, subj := range subjects {
			if err := tx.InsertQueueEntry(ctx, subj, i+1, t0.Add(time.Duration(i)*time.Second)); err != nil {
				return err
			}
		}
		return nil
	})
}

// seedResource installs a resource with the given capacity.
func seedResource(t *testing.T, s *Store, id string, capacity int) {
	t.Helper()
	mustTx(t, s, func(tx *Tx) error {
		return tx.UpsertResource(context.Background(), model.Resource{ResourceID: id, Capacity: capacity})
	})
}

func positions(entries []model.QueueEntry) map[string]int {
	out := make(map[string]int, len(entries))
	for _, e := range entries {
		out[e.SubjectID] = e.Position
	}
	return out
}
