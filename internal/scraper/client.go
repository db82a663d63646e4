// Package scraper fetches community membership snapshots from a chat
// platform's public invite endpoint. Lookups are cached in Redis (when
// configured), collapsed with singleflight, and guarded by retry and a
// circuit breaker. Batch lookups run sequentially with a configurable delay
// between requests to stay inside the remote service's informal rate limits.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/commpulse/community-pulse/internal/record"
	"github.com/commpulse/community-pulse/pkg/config"
	apperrors "github.com/commpulse/community-pulse/pkg/errors"
	"github.com/commpulse/community-pulse/pkg/metrics"
	pkgredis "github.com/commpulse/community-pulse/pkg/redis"
	"github.com/commpulse/community-pulse/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "invite:"

// inviteResponse is the subset of the invite endpoint's JSON payload the
// scraper consumes.
type inviteResponse struct {
	Guild struct {
		Name string `json:"name"`
	} `json:"guild"`
	ApproximateMemberCount   int `json:"approximate_member_count"`
	ApproximatePresenceCount int `json:"approximate_presence_count"`
}

// snapshot is the raw tuple returned by a fetch, cached as JSON.
type snapshot struct {
	CommunityName string `json:"community_name"`
	TotalMembers  int    `json:"total_members"`
	ActiveMembers int    `json:"active_members"`
}

// Result is one entry of a batch lookup: either a Record or the error that
// prevented one. Failed entries never become Records.
type Result struct {
	Link   string
	Record record.Record
	Err    error
}

// Scraper fetches community snapshots from the invite endpoint.
type Scraper struct {
	cfg     config.ScraperConfig
	http    *http.Client
	cache   *pkgredis.Client
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a Scraper. cache and m may be nil; the scraper then fetches
// live every time and skips metric recording.
func New(cfg config.ScraperConfig, ttl time.Duration, cache *pkgredis.Client, m *metrics.Metrics) *Scraper {
	return &Scraper{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.RequestTimeout},
		cache: cache,
		ttl:   ttl,
		breaker: resilience.NewCircuitBreaker("invite-endpoint", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
		metrics: m,
		logger:  slog.Default().With("component", "scraper"),
	}
}

// Lookup resolves an invite link to a Record. Malformed links fail with
// ErrInvalidReference; endpoint failures with ErrFetchFailed. Concurrent
// lookups for the same invite code share a single fetch.
func (s *Scraper) Lookup(ctx context.Context, link string) (record.Record, error) {
	code, err := ParseInviteLink(link)
	if err != nil {
		s.countFetch("invalid_reference")
		return record.Record{}, err
	}

	v, err, _ := s.group.Do(code, func() (any, error) {
		return s.lookupCode(ctx, code)
	})
	if err != nil {
		s.countFetch("fetch_failed")
		return record.Record{}, err
	}

	snap := v.(snapshot)
	offline := snap.TotalMembers - snap.ActiveMembers
	if offline < 0 {
		offline = 0
	}
	return record.New(snap.CommunityName, link, snap.ActiveMembers, offline, snap.TotalMembers), nil
}

// LookupBatch resolves links sequentially, sleeping the configured delay
// between fetches. Every link yields a Result; a failed entry is recorded
// alongside the successes and does not abort the batch.
func (s *Scraper) LookupBatch(ctx context.Context, links []string) []Result {
	results := make([]Result, 0, len(links))
	for i, link := range links {
		if i > 0 && s.cfg.FetchDelay > 0 {
			select {
			case <-time.After(s.cfg.FetchDelay):
			case <-ctx.Done():
				results = append(results, Result{Link: link, Err: ctx.Err()})
				continue
			}
		}
		rec, err := s.Lookup(ctx, link)
		if err != nil {
			s.logger.Warn("lookup failed", "link", link, "error", err)
			results = append(results, Result{Link: link, Err: err})
			continue
		}
		results = append(results, Result{Link: link, Record: rec})
	}
	return results
}

// CacheStats returns the cache hit/miss counters.
func (s *Scraper) CacheStats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

func (s *Scraper) lookupCode(ctx context.Context, code string) (snapshot, error) {
	if snap, ok := s.cacheGet(ctx, code); ok {
		s.countFetch("cached")
		return snap, nil
	}

	start := time.Now()
	var snap snapshot
	err := resilience.Retry(ctx, "invite-fetch", resilience.RetryConfig{
		MaxAttempts: s.cfg.MaxAttempts,
	}, func() error {
		return s.breaker.Execute(func() error {
			var err error
			snap, err = s.fetch(ctx, code)
			return err
		})
	})
	if err != nil {
		return snapshot{}, err
	}

	s.countFetch("ok")
	if s.metrics != nil {
		s.metrics.FetchDuration.WithLabelValues("live").Observe(time.Since(start).Seconds())
	}
	s.cacheSet(ctx, code, snap)
	return snap, nil
}

// fetch performs one HTTP round trip to the invite endpoint.
func (s *Scraper) fetch(ctx context.Context, code string) (snapshot, error) {
	url := fmt.Sprintf("%s/invites/%s?with_counts=true", s.cfg.BaseURL, code)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return snapshot{}, fmt.Errorf("building invite request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return snapshot{}, apperrors.Newf(apperrors.ErrFetchFailed, 503,
			"requesting invite %s: %v", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return snapshot{}, apperrors.Newf(apperrors.ErrFetchFailed, 503,
			"invite %s: status %d", code, resp.StatusCode)
	}

	var payload inviteResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return snapshot{}, apperrors.Newf(apperrors.ErrFetchFailed, 503,
			"decoding invite %s response: %v", code, err)
	}

	return snapshot{
		CommunityName: payload.Guild.Name,
		TotalMembers:  payload.ApproximateMemberCount,
		ActiveMembers: payload.ApproximatePresenceCount,
	}, nil
}

func (s *Scraper) cacheGet(ctx context.Context, code string) (snapshot, bool) {
	if s.cache == nil {
		return snapshot{}, false
	}
	data, err := s.cache.Get(ctx, cacheKeyPrefix+code)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			s.logger.Error("cache get failed", "code", code, "error", err)
		}
		s.misses.Add(1)
		if s.metrics != nil {
			s.metrics.CacheMissesTotal.Inc()
		}
		return snapshot{}, false
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		s.logger.Warn("dropping corrupt cache entry", "code", code, "error", err)
		s.misses.Add(1)
		return snapshot{}, false
	}
	s.hits.Add(1)
	if s.metrics != nil {
		s.metrics.CacheHitsTotal.Inc()
	}
	return snap, true
}

func (s *Scraper) cacheSet(ctx context.Context, code string, snap snapshot) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKeyPrefix+code, data, s.ttl); err != nil {
		// Cache failures degrade to live fetches, never fail the lookup.
		s.logger.Error("cache set failed", "code", code, "error", err)
	}
}

func (s *Scraper) countFetch(outcome string) {
	if s.metrics != nil {
		s.metrics.FetchesTotal.WithLabelValues(outcome).Inc()
		s.metrics.CircuitBreakerState.WithLabelValues("invite-endpoint").
			Set(float64(s.breaker.GetState()))
	}
}
