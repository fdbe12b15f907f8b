package store

import (
	"context"
	"time"
)

// Store defines the interface for blend history persistence.
type Store interface {
	// Lifecycle.
	Start(ctx context.Context) error
	Stop() error
	Ping(ctx context.Context) error

	// Blends.
	CreateBlend(ctx context.Context, blend *Blend) error
	GetBlend(ctx context.Context, id string) (*Blend, error)
	ListBlends(ctx context.Context, opts BlendQueryOpts) ([]*Blend, int, error)
	DeleteOldBlends(ctx context.Context, olderThan time.Time) (int64, error)

	// Migrations.
	Migrate(ctx context.Context) error
}

// BlendStatus represents the outcome of a blend cycle.
type BlendStatus string

const (
	BlendStatusSucceeded    BlendStatus = "succeeded"
	BlendStatusBlendFailed  BlendStatus = "blend_failed"
	BlendStatusExportFailed BlendStatus = "export_failed"
)

// Blend is the record of one drain-and-blend cycle.
type Blend struct {
	ID             string          `json:"id"`
	Status         BlendStatus     `json:"status"`
	Documents      int             `json:"documents"`
	ArtifactBytes  int64           `json:"artifact_bytes"`
	ArtifactDigest string          `json:"artifact_digest,omitempty"`
	Error          string          `json:"error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	Entries        []BlendDocument `json:"entries,omitempty"`
}

// BlendDocument is one drained document that went into a blend.
type BlendDocument struct {
	Ordinal int    `json:"ordinal"`
	Name    string `json:"name"`
	Digest  string `json:"digest"`
	Size    int64  `json:"size"`
}

// BlendQueryOpts contains options for listing blends.
type BlendQueryOpts struct {
	Status *BlendStatus
	Limit  int
	Offset int
}
