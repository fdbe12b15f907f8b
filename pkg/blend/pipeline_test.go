package blend_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/bitmuster/resultblend/pkg/blend"
	"github.com/bitmuster/resultblend/pkg/metrics"
	"github.com/bitmuster/resultblend/pkg/staging"
	"github.com/bitmuster/resultblend/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type fakeResult struct {
	data []byte
	err  error
}

func (r *fakeResult) ExportSpreadsheet() ([]byte, error) {
	return r.data, r.err
}

type fakeLibrary struct {
	mu        sync.Mutex
	contents  []string
	names     []string
	limit     int
	calls     int
	blendErr  error
	exportErr error
	parseErr  error
}

func (l *fakeLibrary) Blend(contents, names []string, limit int) (blend.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	l.contents = contents
	l.names = names
	l.limit = limit

	if l.blendErr != nil {
		return nil, l.blendErr
	}

	return &fakeResult{data: []byte("ods:" + strings.Join(names, ",")), err: l.exportErr}, nil
}

func (l *fakeLibrary) ParseToText(document string) (string, error) {
	if l.parseErr != nil {
		return "", l.parseErr
	}

	return "text:" + document, nil
}

type fixture struct {
	staging  staging.Store
	lib      *fakeLibrary
	history  *store.MemoryStore
	pipeline blend.Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		staging: staging.NewStore(log),
		lib:     &fakeLibrary{},
		history: store.NewMemoryStore(log),
	}

	f.pipeline = blend.NewPipeline(log, f.staging, f.lib, f.history, metrics.New(prometheus.NewRegistry()))

	return f
}

func TestRun_PairsNamesAndContentsInOrder(t *testing.T) {
	f := newFixture(t)

	f.staging.Upload("a", "1")
	f.staging.Upload("b", "2")
	f.staging.Upload("a", "3")

	artifact, err := f.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if strings.Join(f.lib.names, ",") != "a,b,a" || strings.Join(f.lib.contents, ",") != "1,2,3" {
		t.Errorf("unexpected pairing: names=%v contents=%v", f.lib.names, f.lib.contents)
	}

	if f.lib.limit != blend.Limit || blend.Limit != 5 {
		t.Errorf("expected limit 5, got %d", f.lib.limit)
	}

	if !bytes.Equal(artifact.Data, []byte("ods:a,b,a")) {
		t.Errorf("unexpected artifact data %q", artifact.Data)
	}

	if artifact.Documents != 3 || len(artifact.Digest) != 64 {
		t.Errorf("unexpected artifact: %+v", artifact)
	}

	if f.staging.Len() != 0 {
		t.Error("store should be empty after a blend")
	}
}

func TestRun_RecordsHistory(t *testing.T) {
	f := newFixture(t)

	var got *store.Blend

	f.pipeline.SetCompletionCallback(func(record *store.Blend) { got = record })

	f.staging.Upload("r1.xml", "<robot/>")

	artifact, err := f.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got == nil || got.ID != artifact.ID || got.Status != store.BlendStatusSucceeded {
		t.Fatalf("unexpected completion record: %+v", got)
	}

	record, err := f.history.GetBlend(context.Background(), artifact.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	if record == nil {
		t.Fatal("blend was not recorded")
	}

	if record.ArtifactDigest != artifact.Digest || len(record.Entries) != 1 || record.Entries[0].Name != "r1.xml" {
		t.Errorf("unexpected record: %+v", record)
	}
}

func TestRun_BlendFailureDrainsStore(t *testing.T) {
	f := newFixture(t)
	f.lib.blendErr = errors.New("bad input")

	f.staging.Upload("bad.xml", "junk")

	var got *store.Blend

	f.pipeline.SetCompletionCallback(func(record *store.Blend) { got = record })

	_, err := f.pipeline.Run(context.Background())
	if !errors.Is(err, blend.ErrBlendFailed) {
		t.Fatalf("expected ErrBlendFailed, got %v", err)
	}

	if !strings.Contains(err.Error(), "bad input") {
		t.Errorf("error should carry the library message: %v", err)
	}

	if f.staging.Len() != 0 {
		t.Error("documents must not be restored after a failure")
	}

	if got == nil || got.Status != store.BlendStatusBlendFailed || got.Error == "" {
		t.Errorf("unexpected failure record: %+v", got)
	}

	// The next blend sees zero documents and proceeds normally.
	f.lib.blendErr = nil

	artifact, err := f.pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("zero-document run failed: %v", err)
	}

	if artifact.Documents != 0 || len(f.lib.names) != 0 {
		t.Errorf("expected zero documents, got %d (names %v)", artifact.Documents, f.lib.names)
	}
}

func TestRun_ExportFailure(t *testing.T) {
	f := newFixture(t)
	f.lib.exportErr = errors.New("disk full")

	f.staging.Upload("r1.xml", "<robot/>")

	_, err := f.pipeline.Run(context.Background())
	if !errors.Is(err, blend.ErrExportFailed) {
		t.Fatalf("expected ErrExportFailed, got %v", err)
	}

	blends, _, err := f.history.ListBlends(context.Background(), store.BlendQueryOpts{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(blends) != 1 || blends[0].Status != store.BlendStatusExportFailed {
		t.Errorf("unexpected history: %+v", blends)
	}
}

func TestRun_ConcurrentRunsDrainOnce(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 50; i++ {
		f.staging.Upload("doc", "x")
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			artifact, err := f.pipeline.Run(context.Background())
			if err != nil {
				t.Errorf("run failed: %v", err)

				return
			}

			mu.Lock()
			total += artifact.Documents
			mu.Unlock()
		}()
	}

	wg.Wait()

	if total != 50 {
		t.Errorf("expected 50 documents across runs, got %d", total)
	}
}

func TestConvert(t *testing.T) {
	f := newFixture(t)

	text, err := f.pipeline.Convert(context.Background(), "<robot/>")
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}

	if text != "text:<robot/>" {
		t.Errorf("unexpected text %q", text)
	}

	f.lib.parseErr = errors.New("malformed")

	if _, err := f.pipeline.Convert(context.Background(), "<robot"); !errors.Is(err, blend.ErrParseFailed) {
		t.Errorf("expected ErrParseFailed, got %v", err)
	}
}

func TestRobotLibrary(t *testing.T) {
	lib := blend.NewRobotLibrary()

	result, err := lib.Blend([]string{"<robot/>"}, []string{"r1.xml"}, blend.Limit)
	if err != nil {
		t.Fatalf("blend failed: %v", err)
	}

	data, err := result.ExportSpreadsheet()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	if len(data) == 0 {
		t.Error("expected a non-empty spreadsheet")
	}

	if _, err := lib.Blend([]string{"nope"}, []string{"bad.xml"}, blend.Limit); err == nil {
		t.Error("expected error for malformed document")
	}
}
