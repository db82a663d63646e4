package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/commpulse/community-pulse/pkg/config"
	apperrors "github.com/commpulse/community-pulse/pkg/errors"
)

// newInviteServer serves a fake invite endpoint keyed by invite code.
// Unknown codes get a 404, matching the real endpoint's behaviour for
// expired invites.
func newInviteServer(t *testing.T, invites map[string]inviteResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("with_counts") != "true" {
			t.Errorf("missing with_counts=true in %s", r.URL)
		}
		code := r.URL.Path[len("/invites/"):]
		payload, ok := invites[code]
		if !ok {
			http.Error(w, `{"message": "Unknown Invite", "code": 10006}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testScraper(baseURL string) *Scraper {
	return New(config.ScraperConfig{
		BaseURL:        baseURL,
		UserAgent:      "test-agent",
		RequestTimeout: 5 * time.Second,
		FetchDelay:     0,
		MaxAttempts:    1,
	}, 0, nil, nil)
}

func guildPayload(name string, total, active int) inviteResponse {
	var p inviteResponse
	p.Guild.Name = name
	p.ApproximateMemberCount = total
	p.ApproximatePresenceCount = active
	return p
}

// TestLookup verifies a successful lookup produces a Record with the offline
// count derived from the endpoint's totals.
func TestLookup(t *testing.T) {
	srv := newInviteServer(t, map[string]inviteResponse{
		"abc123": guildPayload("Gopher Hangout", 1000, 250),
	})
	s := testScraper(srv.URL)

	rec, err := s.Lookup(t.Context(), "https://discord.gg/abc123")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec.CommunityName != "Gopher Hangout" {
		t.Errorf("CommunityName = %q", rec.CommunityName)
	}
	if rec.Link != "https://discord.gg/abc123" {
		t.Errorf("Link = %q", rec.Link)
	}
	if rec.ActiveMembers != 250 || rec.OfflineMembers != 750 || rec.TotalMembers != 1000 {
		t.Errorf("counts = %d/%d/%d, want 250/750/1000",
			rec.ActiveMembers, rec.OfflineMembers, rec.TotalMembers)
	}
	if rec.EngagementRate != 25 {
		t.Errorf("EngagementRate = %v, want 25", rec.EngagementRate)
	}
}

// TestLookupClampsNegativeOffline verifies presence counts exceeding the
// member count never produce a negative offline count.
func TestLookupClampsNegativeOffline(t *testing.T) {
	srv := newInviteServer(t, map[string]inviteResponse{
		"odd": guildPayload("Overcounted", 100, 120),
	})
	s := testScraper(srv.URL)

	rec, err := s.Lookup(t.Context(), "https://discord.gg/odd")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec.OfflineMembers != 0 {
		t.Errorf("OfflineMembers = %d, want 0", rec.OfflineMembers)
	}
}

// TestLookupInvalidLink verifies a malformed link fails before any HTTP
// request is made.
func TestLookupInvalidLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("endpoint was called for an invalid link")
	}))
	defer srv.Close()
	s := testScraper(srv.URL)

	_, err := s.Lookup(t.Context(), "not an invite")
	if !errors.Is(err, apperrors.ErrInvalidReference) {
		t.Errorf("err = %v, want ErrInvalidReference", err)
	}
}

// TestLookupUnknownInvite verifies an endpoint error surfaces as
// ErrFetchFailed.
func TestLookupUnknownInvite(t *testing.T) {
	srv := newInviteServer(t, nil)
	s := testScraper(srv.URL)

	_, err := s.Lookup(t.Context(), "https://discord.gg/expired")
	if !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Errorf("err = %v, want ErrFetchFailed", err)
	}
}

// TestLookupSendsUserAgent verifies the configured identity header reaches
// the endpoint.
func TestLookupSendsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		json.NewEncoder(w).Encode(guildPayload("UA Check", 10, 5))
	}))
	defer srv.Close()
	s := testScraper(srv.URL)

	if _, err := s.Lookup(t.Context(), "https://discord.gg/ua"); err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if gotUA != "test-agent" {
		t.Errorf("User-Agent = %q, want test-agent", gotUA)
	}
}

// TestLookupBatch verifies failed entries are reported alongside successes
// without aborting the batch.
func TestLookupBatch(t *testing.T) {
	srv := newInviteServer(t, map[string]inviteResponse{
		"good1": guildPayload("First", 100, 10),
		"good2": guildPayload("Second", 200, 20),
	})
	s := testScraper(srv.URL)

	results := s.LookupBatch(t.Context(), []string{
		"https://discord.gg/good1",
		"https://discord.gg/missing",
		"not a link",
		"https://discord.gg/good2",
	})
	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}

	if results[0].Err != nil || results[0].Record.CommunityName != "First" {
		t.Errorf("result 0 = %+v", results[0])
	}
	if !errors.Is(results[1].Err, apperrors.ErrFetchFailed) {
		t.Errorf("result 1 err = %v, want ErrFetchFailed", results[1].Err)
	}
	if !errors.Is(results[2].Err, apperrors.ErrInvalidReference) {
		t.Errorf("result 2 err = %v, want ErrInvalidReference", results[2].Err)
	}
	if results[3].Err != nil || results[3].Record.CommunityName != "Second" {
		t.Errorf("result 3 = %+v", results[3])
	}
}

// TestLookupBatchRespectsCancellation verifies pending entries fail fast once
// the context is cancelled.
func TestLookupBatchRespectsCancellation(t *testing.T) {
	srv := newInviteServer(t, map[string]inviteResponse{
		"a": guildPayload("A", 10, 5),
		"b": guildPayload("B", 10, 5),
	})
	s := New(config.ScraperConfig{
		BaseURL:        srv.URL,
		UserAgent:      "test-agent",
		RequestTimeout: 5 * time.Second,
		FetchDelay:     time.Hour, // never elapses; cancellation must win
		MaxAttempts:    1,
	}, 0, nil, nil)

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	results := s.LookupBatch(ctx, []string{
		"https://discord.gg/a",
		"https://discord.gg/b",
	})
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("result 0 err = %v, want nil", results[0].Err)
	}
	if !errors.Is(results[1].Err, context.Canceled) {
		t.Errorf("result 1 err = %v, want context.Canceled", results[1].Err)
	}
}
