package staging_test

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/bitmuster/resultblend/pkg/staging"
	"github.com/sirupsen/logrus"
)

func newTestStore() staging.Store {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return staging.NewStore(log)
}

func TestStore_ListNamesReflectsUploadsInOrder(t *testing.T) {
	s := newTestStore()

	if names := s.ListNames(); len(names) != 0 {
		t.Fatalf("expected empty store, got %v", names)
	}

	uploads := []string{"b.xml", "a.xml", "b.xml", "c.xml"}

	for i, name := range uploads {
		s.Upload(name, fmt.Sprintf("content-%d", i))

		names := s.ListNames()
		if len(names) != i+1 {
			t.Fatalf("after %d uploads expected %d names, got %d", i+1, i+1, len(names))
		}

		for j := 0; j <= i; j++ {
			if names[j] != uploads[j] {
				t.Errorf("position %d: expected %q, got %q", j, uploads[j], names[j])
			}
		}
	}
}

func TestStore_UploadKeepsDuplicateNames(t *testing.T) {
	s := newTestStore()

	s.Upload("same.xml", "first")
	s.Upload("same.xml", "second")

	docs := s.DrainAll()
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}

	if docs[0].Content != "first" || docs[1].Content != "second" {
		t.Errorf("duplicates overwritten or reordered: %q, %q", docs[0].Content, docs[1].Content)
	}

	if docs[0].ID == docs[1].ID {
		t.Error("documents should have distinct IDs")
	}
}

func TestStore_UploadComputesMetadata(t *testing.T) {
	s := newTestStore()

	doc := s.Upload("r1.xml", "<robot/>")

	if doc.Size != len("<robot/>") {
		t.Errorf("expected size %d, got %d", len("<robot/>"), doc.Size)
	}

	if len(doc.Digest) != 64 {
		t.Errorf("expected 64 hex chars of blake3 digest, got %q", doc.Digest)
	}

	other := s.Upload("r2.xml", "<robot/>")
	if other.Digest != doc.Digest {
		t.Error("identical content should have identical digests")
	}

	if doc.StagedAt.IsZero() {
		t.Error("StagedAt not set")
	}
}

func TestStore_DrainAllEmptiesStore(t *testing.T) {
	s := newTestStore()

	s.Upload("a.txt", "x")
	s.Upload("b.txt", "y")

	docs := s.DrainAll()
	if len(docs) != 2 {
		t.Fatalf("expected 2 drained documents, got %d", len(docs))
	}

	if docs[0].Name != "a.txt" || docs[1].Name != "b.txt" {
		t.Errorf("unexpected drain order: %q, %q", docs[0].Name, docs[1].Name)
	}

	if s.Len() != 0 {
		t.Errorf("expected empty store after drain, got %d", s.Len())
	}

	again := s.DrainAll()
	if again == nil || len(again) != 0 {
		t.Errorf("expected empty non-nil drain on empty store, got %v", again)
	}
}

func TestStore_ConcurrentUploadsAreNotLost(t *testing.T) {
	s := newTestStore()

	const uploads = 200

	var wg sync.WaitGroup

	for i := 0; i < uploads; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			s.Upload(fmt.Sprintf("doc-%d", i), "x")
		}(i)
	}

	wg.Wait()

	docs := s.DrainAll()
	if len(docs) != uploads {
		t.Fatalf("expected %d documents, got %d", uploads, len(docs))
	}

	seen := make(map[string]bool, uploads)
	for _, doc := range docs {
		if seen[doc.Name] {
			t.Errorf("document %s drained twice", doc.Name)
		}

		seen[doc.Name] = true
	}
}

func TestStore_ConcurrentDrainsPartitionUploads(t *testing.T) {
	s := newTestStore()

	const uploads = 500

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		drained []staging.Document
	)

	for i := 0; i < uploads; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			s.Upload(fmt.Sprintf("doc-%d", i), "x")
		}(i)
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			docs := s.DrainAll()

			mu.Lock()
			drained = append(drained, docs...)
			mu.Unlock()
		}()
	}

	wg.Wait()

	drained = append(drained, s.DrainAll()...)

	if len(drained) != uploads {
		t.Fatalf("expected %d documents across drains, got %d", uploads, len(drained))
	}

	seen := make(map[string]bool, uploads)
	for _, doc := range drained {
		if seen[doc.Name] {
			t.Fatalf("document %s drained more than once", doc.Name)
		}

		seen[doc.Name] = true
	}
}

func TestStore_ChangeCallback(t *testing.T) {
	s := newTestStore()

	var kinds []staging.ChangeKind

	var counts []int

	s.SetChangeCallback(func(kind staging.ChangeKind, docs []staging.Document, remaining int) {
		kinds = append(kinds, kind)
		counts = append(counts, remaining)

		// The lock must not be held while the callback runs.
		_ = s.Len()
	})

	s.Upload("a", "1")
	s.Upload("b", "2")
	s.DrainAll()

	expectedKinds := []staging.ChangeKind{staging.ChangeStaged, staging.ChangeStaged, staging.ChangeDrained}
	expectedCounts := []int{1, 2, 0}

	if len(kinds) != len(expectedKinds) {
		t.Fatalf("expected %d callbacks, got %d", len(expectedKinds), len(kinds))
	}

	for i := range expectedKinds {
		if kinds[i] != expectedKinds[i] || counts[i] != expectedCounts[i] {
			t.Errorf("callback %d: expected (%s, %d), got (%s, %d)",
				i, expectedKinds[i], expectedCounts[i], kinds[i], counts[i])
		}
	}
}
