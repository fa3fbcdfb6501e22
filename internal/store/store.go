package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"poem-annotator/internal/poem"
)

type BatchStatus string

const (
	StatusQueued     BatchStatus = "queued"
	StatusProcessing BatchStatus = "processing"
	StatusReady      BatchStatus = "ready"
	StatusFailed     BatchStatus = "failed"
	// StatusMock marks a batch run while no backend was reachable. Its
	// placeholder annotations are never stored.
	StatusMock BatchStatus = "mock"
)

var ErrNotFound = errors.New("not found")

type Batch struct {
	ID        uuid.UUID   `json:"id"`
	Status    BatchStatus `json:"status"`
	Total     int         `json:"total"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Annotation is a stored result row. Missing lists the sections the model
// left empty.
type Annotation struct {
	BatchID uuid.UUID `json:"batch_id"`
	Index   int       `json:"index"`
	poem.Result
	Missing   []string  `json:"missing"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the persistence contract for batches and their annotations.
type Store interface {
	CreateBatch(ctx context.Context, total int) (Batch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (Batch, error)
	UpdateBatchStatus(ctx context.Context, id uuid.UUID, status BatchStatus) error
	// SaveResults upserts results keyed by title and author, so a later run
	// replaces an earlier annotation of the same poem.
	SaveResults(ctx context.Context, batchID uuid.UUID, results []poem.Result) error
	ListResults(ctx context.Context, batchID uuid.UUID) ([]poem.Result, error)
	GetAnnotation(ctx context.Context, title, author string) (Annotation, error)
	Close() error
}
