package collector

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/commpulse/community-pulse/internal/archive"
	"github.com/commpulse/community-pulse/internal/record"
	apperrors "github.com/commpulse/community-pulse/pkg/errors"
	"github.com/commpulse/community-pulse/pkg/kafka"
	"github.com/commpulse/community-pulse/pkg/metrics"
	"github.com/commpulse/community-pulse/pkg/resilience"
)

// Overview is the market-level aggregate served by the collector API.
type Overview struct {
	Communities       int     `json:"communities"`
	MarketSize        int     `json:"market_size"`
	AvgCommunitySize  float64 `json:"avg_community_size"`
	AvgEngagementRate float64 `json:"avg_engagement_rate"`
	MostEngaged       string  `json:"most_engaged,omitempty"`
	Largest           string  `json:"largest,omitempty"`
	LastUpdate        string  `json:"last_update,omitempty"`
}

// Aggregator consumes snapshot events and keeps the latest snapshot per
// community in memory. It optionally archives every event to PostgreSQL.
type Aggregator struct {
	mu         sync.RWMutex
	latest     map[string]record.Record
	lastUpdate time.Time

	consumer *kafka.Consumer
	store    *archive.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator. store and m may be nil.
func NewAggregator(store *archive.Store, m *metrics.Metrics) *Aggregator {
	return &Aggregator{
		latest:  make(map[string]record.Record),
		store:   store,
		metrics: m,
		logger:  slog.Default().With("component", "snapshot-aggregator"),
	}
}

// SetConsumer attaches the Kafka consumer driving this aggregator.
func (a *Aggregator) SetConsumer(c *kafka.Consumer) {
	a.consumer = c
}

// Start warms the in-memory state from the archive, then enters the consume
// loop until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.store != nil {
		if set, err := a.store.ListLatest(ctx); err != nil {
			a.logger.Warn("cold-start load failed, starting empty", "error", err)
		} else {
			a.mu.Lock()
			for _, r := range set {
				a.latest[r.CommunityName] = r
			}
			a.mu.Unlock()
			a.logger.Info("cold-start state loaded", "communities", len(set))
		}
	}
	a.logger.Info("snapshot aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent returns the Kafka message handler that feeds an Aggregator.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[SnapshotEvent](value)
		if err != nil {
			agg.count("decode_error")
			agg.logger.Error("failed to decode snapshot event", "error", err)
			return nil
		}
		agg.apply(ctx, event)
		return nil
	}
}

func (a *Aggregator) apply(ctx context.Context, event SnapshotEvent) {
	rec := event.Record()

	a.mu.Lock()
	a.latest[rec.CommunityName] = rec
	a.lastUpdate = event.FetchedAt
	size := len(a.latest)
	a.mu.Unlock()

	a.count("ok")
	if a.metrics != nil {
		a.metrics.TrackedCommunities.Set(float64(size))
	}

	if a.store != nil {
		err := resilience.WithTimeout(ctx, 5*time.Second, "archive-write", func(ctx context.Context) error {
			return a.store.SaveSnapshot(ctx, rec, event.FetchedAt)
		})
		if err != nil {
			a.logger.Error("archive write failed",
				"community", rec.CommunityName,
				"error", err,
			)
		} else if a.metrics != nil {
			a.metrics.SnapshotsArchived.Inc()
		}
	}
}

// Set returns the latest snapshot of every tracked community, ordered by
// community name for deterministic report output.
func (a *Aggregator) Set() record.Set {
	a.mu.RLock()
	defer a.mu.RUnlock()
	set := make(record.Set, 0, len(a.latest))
	for _, r := range a.latest {
		set = append(set, r)
	}
	sort.Slice(set, func(i, j int) bool {
		return set[i].CommunityName < set[j].CommunityName
	})
	return set
}

// Latest returns the newest snapshot for one community. Communities not seen
// since startup fall back to the archive; unknown communities fail with
// ErrSnapshotNotFound.
func (a *Aggregator) Latest(ctx context.Context, name string) (record.Record, error) {
	a.mu.RLock()
	r, ok := a.latest[name]
	a.mu.RUnlock()
	if ok {
		return r, nil
	}
	if a.store != nil {
		rec, err := a.store.LatestByCommunity(ctx, name)
		if err != nil {
			return record.Record{}, err
		}
		if rec != nil {
			return *rec, nil
		}
	}
	return record.Record{}, apperrors.Newf(apperrors.ErrSnapshotNotFound, 404,
		"no snapshot for community %q", name)
}

// Overview computes the market aggregate over the tracked communities.
func (a *Aggregator) Overview() Overview {
	set := a.Set()

	a.mu.RLock()
	lastUpdate := a.lastUpdate
	a.mu.RUnlock()

	out := Overview{Communities: len(set)}
	if !lastUpdate.IsZero() {
		out.LastUpdate = lastUpdate.UTC().Format(time.RFC3339)
	}
	if len(set) == 0 {
		return out
	}

	var sumRate float64
	mostEngaged, largest := set[0], set[0]
	for _, r := range set {
		out.MarketSize += r.TotalMembers
		sumRate += r.EngagementRate
		if r.EngagementRate > mostEngaged.EngagementRate {
			mostEngaged = r
		}
		if r.TotalMembers > largest.TotalMembers {
			largest = r
		}
	}
	out.AvgCommunitySize = float64(out.MarketSize) / float64(len(set))
	out.AvgEngagementRate = sumRate / float64(len(set))
	out.MostEngaged = mostEngaged.CommunityName
	out.Largest = largest.CommunityName
	return out
}

func (a *Aggregator) count(outcome string) {
	if a.metrics != nil {
		a.metrics.SnapshotEventsTotal.WithLabelValues(outcome).Inc()
	}
}
