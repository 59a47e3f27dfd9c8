package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/courtdata/results-ingest/model"
)

// Store is the Postgres-backed league store. It is constructed once at
// startup and reused across cycles; it holds no state between calls.
type Store struct {
	db *bun.DB
}

// New opens a connection pool against the provided DSN and verifies it
// with a ping.
func New(ctx context.Context, dsn string) (*Store, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Divisions fetches the full division reference set.
func (s *Store) Divisions(ctx context.Context) ([]model.Division, error) {
	var divisions []model.Division
	if err := s.db.NewSelect().Model(&divisions).Scan(ctx); err != nil {
		return nil, fmt.Errorf("fetch divisions: %w", err)
	}
	return divisions, nil
}

// Teams fetches the full team reference set.
func (s *Store) Teams(ctx context.Context) ([]model.Team, error) {
	var teams []model.Team
	if err := s.db.NewSelect().Model(&teams).Scan(ctx); err != nil {
		return nil, fmt.Errorf("fetch teams: %w", err)
	}
	return teams, nil
}

// CountMatches returns the number of rows currently in the matches table.
// The gate uses it as the loss-prevention baseline.
func (s *Store) CountMatches(ctx context.Context) (int, error) {
	count, err := s.db.NewSelect().Model((*model.Match)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}
	return count, nil
}

// ReplaceMatches swaps the entire matches snapshot for the candidate set.
// Delete and insert run in one transaction so an interruption cannot leave
// the table empty.
func (s *Store) ReplaceMatches(ctx context.Context, matches []model.Match) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*model.Match)(nil)).Where("TRUE").Exec(ctx); err != nil {
			return fmt.Errorf("clear matches: %w", err)
		}
		if _, err := tx.NewInsert().Model(&matches).Exec(ctx); err != nil {
			return fmt.Errorf("insert matches: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace matches: %w", err)
	}
	return nil
}
