package store

import (
	"context"
	"time"

	"github.com/me/framestep/pkg/model"
)

// Store defines the persistence layer for run telemetry. Generation
// contents are never stored.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, id string, finishedAt time.Time, generations, frames int64) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)

	// Pass samples
	RecordPasses(ctx context.Context, samples []model.PassSample) error
	ListPassSamples(ctx context.Context, runID string, limit int) ([]model.PassSample, error)
	SummarizePasses(ctx context.Context, runID string) (model.PassSummary, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
