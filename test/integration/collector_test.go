// Package integration contains tests that verify the interaction between the
// archive store, the aggregator, and the collector HTTP API against a real
// PostgreSQL database. Kafka and Redis are not required.
//
// Run with:
//
//	go test -v -tags=integration ./test/integration/...
package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/commpulse/community-pulse/internal/archive"
	"github.com/commpulse/community-pulse/internal/collector"
	"github.com/commpulse/community-pulse/internal/record"
	"github.com/commpulse/community-pulse/pkg/config"
	"github.com/commpulse/community-pulse/pkg/postgres"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := testPostgresConfig()
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.DB.ExecContext(t.Context(), `
		CREATE TABLE IF NOT EXISTS community_snapshots (
		    id              BIGSERIAL PRIMARY KEY,
		    community_name  TEXT NOT NULL,
		    link            TEXT NOT NULL DEFAULT '',
		    active_members  INTEGER NOT NULL,
		    offline_members INTEGER NOT NULL,
		    total_members   INTEGER NOT NULL,
		    fetched_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		t.Fatalf("creating snapshot table: %v", err)
	}
	if _, err := db.DB.ExecContext(t.Context(), `TRUNCATE community_snapshots`); err != nil {
		t.Fatalf("truncating snapshot table: %v", err)
	}
	return db
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "communitypulse_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "communitypulse"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestArchiveRoundTrip verifies snapshots survive a save/load cycle with
// derived metrics recomputed on the way out.
func TestArchiveRoundTrip(t *testing.T) {
	db := skipIfNoPostgres(t)
	store := archive.NewStore(db)

	orig := record.New("Archive Test", "https://discord.gg/arch", 250, 750, 1000)
	if err := store.SaveSnapshot(t.Context(), orig, time.Now().UTC()); err != nil {
		t.Fatalf("saving snapshot: %v", err)
	}

	loaded, err := store.LatestByCommunity(t.Context(), "Archive Test")
	if err != nil {
		t.Fatalf("loading snapshot: %v", err)
	}
	if loaded == nil {
		t.Fatal("snapshot not found after save")
	}
	if *loaded != orig {
		t.Errorf("loaded = %+v, want %+v", *loaded, orig)
	}
}

// TestArchiveLatestWins verifies LatestByCommunity and ListLatest pick the
// most recent snapshot per community.
func TestArchiveLatestWins(t *testing.T) {
	db := skipIfNoPostgres(t)
	store := archive.NewStore(db)

	base := time.Now().UTC().Add(-time.Hour)
	old := record.New("Evolving", "", 10, 90, 100)
	fresh := record.New("Evolving", "", 50, 150, 200)
	other := record.New("Other", "", 5, 5, 10)

	for _, step := range []struct {
		rec record.Record
		at  time.Time
	}{
		{old, base},
		{fresh, base.Add(30 * time.Minute)},
		{other, base},
	} {
		if err := store.SaveSnapshot(t.Context(), step.rec, step.at); err != nil {
			t.Fatalf("saving snapshot: %v", err)
		}
	}

	latest, err := store.LatestByCommunity(t.Context(), "Evolving")
	if err != nil {
		t.Fatalf("loading latest: %v", err)
	}
	if latest.TotalMembers != 200 {
		t.Errorf("latest TotalMembers = %d, want 200", latest.TotalMembers)
	}

	set, err := store.ListLatest(t.Context())
	if err != nil {
		t.Fatalf("listing latest: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("len(set) = %d, want 2", len(set))
	}
	// Ordered by community name.
	if set[0].CommunityName != "Evolving" || set[1].CommunityName != "Other" {
		t.Errorf("set order = %q, %q", set[0].CommunityName, set[1].CommunityName)
	}
}

// TestArchiveUnknownCommunity verifies the nil, nil contract for communities
// that have never been seen.
func TestArchiveUnknownCommunity(t *testing.T) {
	db := skipIfNoPostgres(t)
	store := archive.NewStore(db)

	rec, err := store.LatestByCommunity(t.Context(), "never-seen")
	if err != nil {
		t.Fatalf("LatestByCommunity failed: %v", err)
	}
	if rec != nil {
		t.Errorf("rec = %+v, want nil", rec)
	}
}

// TestArchivePrune verifies old snapshots are deleted and recent ones kept.
func TestArchivePrune(t *testing.T) {
	db := skipIfNoPostgres(t)
	store := archive.NewStore(db)

	now := time.Now().UTC()
	rec := record.New("Prunable", "", 1, 1, 2)
	if err := store.SaveSnapshot(t.Context(), rec, now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("saving old snapshot: %v", err)
	}
	if err := store.SaveSnapshot(t.Context(), rec, now); err != nil {
		t.Fatalf("saving fresh snapshot: %v", err)
	}

	pruned, err := store.Prune(t.Context(), now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("pruning: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}

	set, err := store.ListLatest(t.Context())
	if err != nil {
		t.Fatalf("listing after prune: %v", err)
	}
	if len(set) != 1 {
		t.Errorf("len(set) = %d, want 1", len(set))
	}
}

// TestAggregatorColdStart verifies the collector API serves archived
// snapshots after a restart, before any new events arrive.
func TestAggregatorColdStart(t *testing.T) {
	db := skipIfNoPostgres(t)
	store := archive.NewStore(db)

	now := time.Now().UTC()
	for _, rec := range []record.Record{
		record.New("Alpha", "", 10, 90, 100),
		record.New("Beta", "", 20, 80, 100),
	} {
		if err := store.SaveSnapshot(t.Context(), rec, now); err != nil {
			t.Fatalf("seeding archive: %v", err)
		}
	}

	// A fresh aggregator warmed straight from the archive, as the service
	// does on startup.
	agg := collector.NewAggregator(store, nil)
	seed, err := store.ListLatest(t.Context())
	if err != nil {
		t.Fatalf("listing archive: %v", err)
	}
	handler := collector.HandleEvent(agg)
	for _, rec := range seed {
		payload := collector.NewSnapshotEvent(rec, collector.SourceCache, now)
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encoding snapshot event: %v", err)
		}
		if err := handler(t.Context(), []byte(rec.CommunityName), data); err != nil {
			t.Fatalf("replaying snapshot: %v", err)
		}
	}

	h := collector.NewHandler(agg, nil)
	rr := httptest.NewRecorder()
	h.Report(rr, httptest.NewRequest(http.MethodGet, "/api/v1/report", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("report status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Total communities analyzed: 2") {
		t.Errorf("unexpected report:\n%s", rr.Body.String())
	}
}

// TestAggregatorArchiveFallback verifies Latest consults the archive for
// communities not seen since startup.
func TestAggregatorArchiveFallback(t *testing.T) {
	db := skipIfNoPostgres(t)
	store := archive.NewStore(db)

	rec := record.New("Dormant", "", 3, 7, 10)
	if err := store.SaveSnapshot(t.Context(), rec, time.Now().UTC()); err != nil {
		t.Fatalf("seeding archive: %v", err)
	}

	agg := collector.NewAggregator(store, nil)
	got, err := agg.Latest(t.Context(), "Dormant")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if got != rec {
		t.Errorf("Latest = %+v, want %+v", got, rec)
	}

	if _, err := agg.Latest(t.Context(), "never-seen"); err == nil {
		t.Error("Latest succeeded for unknown community, want error")
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
