package store

import (
	"context"

	"github.com/backyonatan-alt/conflictwatch/internal/model"
)

// Store is the repository interface for the fetch run ledger.
// Only run metadata is stored; records stay in the output files.
type Store interface {
	// Migrate runs database migrations.
	Migrate(ctx context.Context) error
	// RecordRun stores the outcome of one fetcher run.
	RecordRun(ctx context.Context, run model.RunRecord) error
	// RecentRuns returns the latest runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
}
