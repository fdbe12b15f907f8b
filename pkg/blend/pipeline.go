package blend

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bitmuster/resultblend/pkg/metrics"
	"github.com/bitmuster/resultblend/pkg/staging"
	"github.com/bitmuster/resultblend/pkg/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// Limit is the fixed limit passed to every Library.Blend call.
const Limit = 5

var (
	ErrBlendFailed  = errors.New("blend failed")
	ErrExportFailed = errors.New("export failed")
	ErrParseFailed  = errors.New("parse failed")
)

// Library is the blend/export capability the pipeline delegates to.
type Library interface {
	Blend(contents, names []string, limit int) (Result, error)
	ParseToText(document string) (string, error)
}

// Result is an opaque blend result that can be exported.
type Result interface {
	ExportSpreadsheet() ([]byte, error)
}

// Artifact is the exported spreadsheet of one blend cycle.
type Artifact struct {
	ID        string
	Data      []byte
	Names     []string
	Documents int
	Digest    string
	CreatedAt time.Time
}

// CompletionCallback is called with the history record of every blend cycle.
type CompletionCallback func(record *store.Blend)

// Pipeline drains the staging store and turns its documents into an artifact.
type Pipeline interface {
	// Run drains every staged document and blends them. The drained
	// documents are not restored when the blend or the export fails.
	Run(ctx context.Context) (*Artifact, error)

	// Convert renders a single document as text.
	Convert(ctx context.Context, document string) (string, error)

	SetCompletionCallback(cb CompletionCallback)
}

// pipeline implements Pipeline.
type pipeline struct {
	log     logrus.FieldLogger
	staging staging.Store
	lib     Library
	history store.Store
	metrics *metrics.Metrics

	mu           sync.Mutex
	onCompletion CompletionCallback
}

// Ensure pipeline implements Pipeline.
var _ Pipeline = (*pipeline)(nil)

// NewPipeline creates a new blend pipeline.
func NewPipeline(
	log logrus.FieldLogger,
	st staging.Store,
	lib Library,
	history store.Store,
	m *metrics.Metrics,
) Pipeline {
	return &pipeline{
		log:     log.WithField("component", "blend"),
		staging: st,
		lib:     lib,
		history: history,
		metrics: m,
	}
}

// SetCompletionCallback sets the callback for finished blend cycles.
func (p *pipeline) SetCompletionCallback(cb CompletionCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.onCompletion = cb
}

// Run drains, blends and exports.
func (p *pipeline) Run(ctx context.Context) (*Artifact, error) {
	started := time.Now().UTC()
	docs := p.staging.DrainAll()

	names := make([]string, len(docs))
	contents := make([]string, len(docs))
	entries := make([]store.BlendDocument, len(docs))

	for i, doc := range docs {
		names[i] = doc.Name
		contents[i] = doc.Content
		entries[i] = store.BlendDocument{
			Ordinal: i,
			Name:    doc.Name,
			Digest:  doc.Digest,
			Size:    int64(doc.Size),
		}
	}

	p.metrics.RecordDrain(len(docs))

	record := &store.Blend{
		ID:        uuid.New().String(),
		Documents: len(docs),
		StartedAt: started,
		Entries:   entries,
	}

	log := p.log.WithFields(logrus.Fields{
		"blend_id":  record.ID,
		"documents": len(docs),
	})

	data, err := p.blend(contents, names)
	if err != nil {
		record.Status = store.BlendStatusBlendFailed
		if errors.Is(err, ErrExportFailed) {
			record.Status = store.BlendStatusExportFailed
		}

		record.Error = err.Error()

		log.WithError(err).Warn("Blend failed")
		p.finish(ctx, record)

		return nil, err
	}

	sum := blake3.Sum256(data)

	artifact := &Artifact{
		ID:        record.ID,
		Data:      data,
		Names:     names,
		Documents: len(docs),
		Digest:    hex.EncodeToString(sum[:]),
		CreatedAt: time.Now().UTC(),
	}

	record.Status = store.BlendStatusSucceeded
	record.ArtifactBytes = int64(len(data))
	record.ArtifactDigest = artifact.Digest

	log.WithField("bytes", len(data)).Info("Blend completed")
	p.finish(ctx, record)

	return artifact, nil
}

// blend calls the library and exports its result.
func (p *pipeline) blend(contents, names []string) ([]byte, error) {
	result, err := p.lib.Blend(contents, names, Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlendFailed, err)
	}

	if result == nil {
		return nil, fmt.Errorf("%w: library returned no result", ErrBlendFailed)
	}

	data, err := result.ExportSpreadsheet()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	return data, nil
}

// finish records the cycle in history and metrics and notifies listeners.
func (p *pipeline) finish(ctx context.Context, record *store.Blend) {
	record.FinishedAt = time.Now().UTC()

	p.metrics.RecordBlend(
		string(record.Status),
		record.FinishedAt.Sub(record.StartedAt).Seconds(),
		int(record.ArtifactBytes),
	)

	if err := p.history.CreateBlend(ctx, record); err != nil {
		p.log.WithError(err).WithField("blend_id", record.ID).Error("Failed to record blend")
	}

	p.mu.Lock()
	cb := p.onCompletion
	p.mu.Unlock()

	if cb != nil {
		cb(record)
	}
}

// Convert renders document as text through the library.
func (p *pipeline) Convert(_ context.Context, document string) (string, error) {
	text, err := p.lib.ParseToText(document)
	if err != nil {
		p.metrics.RecordConversion("failed")

		return "", fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	p.metrics.RecordConversion("succeeded")

	return text, nil
}
