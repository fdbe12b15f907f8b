package store_test

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitmuster/resultblend/pkg/config"
	"github.com/bitmuster/resultblend/pkg/store"
	"github.com/sirupsen/logrus"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func newBlend(id string, status store.BlendStatus, finished time.Time) *store.Blend {
	return &store.Blend{
		ID:             id,
		Status:         status,
		Documents:      2,
		ArtifactBytes:  1024,
		ArtifactDigest: "abc123",
		StartedAt:      finished.Add(-time.Second),
		FinishedAt:     finished,
		Entries: []store.BlendDocument{
			{Ordinal: 0, Name: "r1.xml", Digest: "d1", Size: 9},
			{Ordinal: 1, Name: "r2.xml", Digest: "d2", Size: 11},
		},
	}
}

func runStoreTests(t *testing.T, s store.Store) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	t.Cleanup(func() { s.Stop() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	old := newBlend("old", store.BlendStatusSucceeded, now.Add(-48*time.Hour))
	failed := newBlend("failed", store.BlendStatusBlendFailed, now.Add(-time.Hour))
	failed.Error = "blend failed"
	failed.ArtifactBytes = 0
	failed.ArtifactDigest = ""
	recent := newBlend("recent", store.BlendStatusSucceeded, now)

	for _, b := range []*store.Blend{old, failed, recent} {
		if err := s.CreateBlend(ctx, b); err != nil {
			t.Fatalf("create %s failed: %v", b.ID, err)
		}
	}

	t.Run("get", func(t *testing.T) {
		got, err := s.GetBlend(ctx, "failed")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}

		if got == nil {
			t.Fatal("expected blend")
		}

		if got.Status != store.BlendStatusBlendFailed || got.Error != "blend failed" {
			t.Errorf("unexpected blend: %+v", got)
		}

		if len(got.Entries) != 2 || got.Entries[0].Name != "r1.xml" || got.Entries[1].Size != 11 {
			t.Errorf("unexpected entries: %+v", got.Entries)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		got, err := s.GetBlend(ctx, "nope")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}

		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("list", func(t *testing.T) {
		blends, total, err := s.ListBlends(ctx, store.BlendQueryOpts{Limit: 2})
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}

		if total != 3 {
			t.Errorf("expected total 3, got %d", total)
		}

		if len(blends) != 2 || blends[0].ID != "recent" || blends[1].ID != "failed" {
			t.Fatalf("unexpected order: %+v", blends)
		}

		if len(blends[0].Entries) != 0 {
			t.Error("list should not load entries")
		}

		page, _, err := s.ListBlends(ctx, store.BlendQueryOpts{Limit: 2, Offset: 2})
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}

		if len(page) != 1 || page[0].ID != "old" {
			t.Errorf("unexpected second page: %+v", page)
		}
	})

	t.Run("list by status", func(t *testing.T) {
		status := store.BlendStatusBlendFailed

		blends, total, err := s.ListBlends(ctx, store.BlendQueryOpts{Status: &status, Limit: 10})
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}

		if total != 1 || len(blends) != 1 || blends[0].ID != "failed" {
			t.Errorf("unexpected result: total=%d %+v", total, blends)
		}
	})

	t.Run("delete old", func(t *testing.T) {
		count, err := s.DeleteOldBlends(ctx, now.Add(-24*time.Hour))
		if err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		if count != 1 {
			t.Errorf("expected 1 deleted, got %d", count)
		}

		got, err := s.GetBlend(ctx, "old")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}

		if got != nil {
			t.Error("old blend should be gone")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, store.NewMemoryStore(testLogger()))
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	runStoreTests(t, store.NewSQLiteStore(testLogger(), path))
}

func TestNew(t *testing.T) {
	tests := []struct {
		driver  string
		wantErr bool
	}{
		{driver: "memory"},
		{driver: "sqlite"},
		{driver: "postgres"},
		{driver: "mysql"},
		{driver: "oracle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Database.Driver = tt.driver

			s, err := store.New(testLogger(), cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}

			if !tt.wantErr && s == nil {
				t.Error("expected store")
			}
		})
	}
}
