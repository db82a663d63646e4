// Package archive provides durable storage of community snapshots in
// PostgreSQL. The collector writes every consumed snapshot here; the API
// reloads the latest snapshot per community on cold start.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/commpulse/community-pulse/internal/record"
	"github.com/commpulse/community-pulse/pkg/postgres"
)

// Store persists community snapshots in PostgreSQL.
//
// It requires a `community_snapshots` table:
//
//	CREATE TABLE community_snapshots (
//	    id              BIGSERIAL PRIMARY KEY,
//	    community_name  TEXT NOT NULL,
//	    link            TEXT NOT NULL DEFAULT '',
//	    active_members  INTEGER NOT NULL,
//	    offline_members INTEGER NOT NULL,
//	    total_members   INTEGER NOT NULL,
//	    fetched_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX community_snapshots_name_idx
//	    ON community_snapshots (community_name, fetched_at DESC);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a snapshot archive store.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "archive"),
	}
}

// SaveSnapshot appends one snapshot row. Derived metrics are not stored;
// they are recomputed on load so the derivation has a single home.
func (s *Store) SaveSnapshot(ctx context.Context, r record.Record, fetchedAt time.Time) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO community_snapshots
		   (community_name, link, active_members, offline_members, total_members, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.CommunityName, r.Link, r.ActiveMembers, r.OfflineMembers, r.TotalMembers,
		fetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot for %q: %w", r.CommunityName, err)
	}
	s.logger.Debug("snapshot archived",
		"community", r.CommunityName,
		"total_members", r.TotalMembers,
	)
	return nil
}

// LatestByCommunity loads the most recent snapshot for one community.
// Returns nil, nil when the community has never been seen.
func (s *Store) LatestByCommunity(ctx context.Context, name string) (*record.Record, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT community_name, link, active_members, offline_members, total_members
		   FROM community_snapshots
		  WHERE community_name = $1
		  ORDER BY fetched_at DESC
		  LIMIT 1`, name)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot for %q: %w", name, err)
	}
	return &rec, nil
}

// ListLatest returns the most recent snapshot of every known community,
// ordered by community name.
func (s *Store) ListLatest(ctx context.Context) (record.Set, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT DISTINCT ON (community_name)
		        community_name, link, active_members, offline_members, total_members
		   FROM community_snapshots
		  ORDER BY community_name, fetched_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing latest snapshots: %w", err)
	}
	defer rows.Close()

	var set record.Set
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		set = append(set, rec)
	}
	return set, rows.Err()
}

// Prune deletes snapshots older than the cutoff and returns the row count.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx,
		`DELETE FROM community_snapshots WHERE fetched_at < $1`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned snapshots: %w", err)
	}
	if n > 0 {
		s.logger.Info("snapshots pruned", "count", n, "cutoff", olderThan)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord rebuilds a Record from a snapshot row, recomputing the derived
// metrics through the normal constructor.
func scanRecord(row rowScanner) (record.Record, error) {
	var name, link string
	var active, offline, total int
	if err := row.Scan(&name, &link, &active, &offline, &total); err != nil {
		return record.Record{}, err
	}
	return record.New(name, link, active, offline, total), nil
}
