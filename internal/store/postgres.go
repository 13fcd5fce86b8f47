package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/backyonatan-alt/conflictwatch/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS fetch_runs (
			id           UUID PRIMARY KEY,
			source       TEXT NOT NULL,
			status       TEXT NOT NULL,
			records      INTEGER NOT NULL DEFAULT 0,
			pages        INTEGER NOT NULL DEFAULT 0,
			path         TEXT NOT NULL DEFAULT '',
			error        TEXT NOT NULL DEFAULT '',
			started_at   TIMESTAMPTZ NOT NULL,
			finished_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_fetch_runs_started_at ON fetch_runs (started_at DESC);
	`
	_, err := p.db.ExecContext(ctx, query)
	return err
}

func (p *Postgres) RecordRun(ctx context.Context, run model.RunRecord) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO fetch_runs (id, source, status, records, pages, path, error, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.Source, run.Status, run.Records, run.Pages, run.Path, run.Error,
		run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert fetch run: %w", err)
	}
	return nil
}

func (p *Postgres) RecentRuns(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, source, status, records, pages, path, error, started_at, finished_at
		 FROM fetch_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query fetch runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunRecord
	for rows.Next() {
		var r model.RunRecord
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.Records, &r.Pages, &r.Path, &r.Error,
			&r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan fetch run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
