// Package collector defines the snapshot event schema and the two halves of
// the snapshot pipeline: the Tracker (producer side, used by the lookup CLI)
// and the Aggregator (consumer side, run by the collector service).
package collector

import (
	"time"

	"github.com/commpulse/community-pulse/internal/record"
)

// Source identifies where a snapshot came from.
type Source string

const (
	SourceLive  Source = "live"
	SourceCache Source = "cache"
)

// SnapshotEvent is the Kafka message payload published for every community
// snapshot the lookup CLI produces.
type SnapshotEvent struct {
	CommunityName  string    `json:"community_name"`
	Link           string    `json:"link,omitempty"`
	ActiveMembers  int       `json:"active_members"`
	OfflineMembers int       `json:"offline_members"`
	TotalMembers   int       `json:"total_members"`
	Source         Source    `json:"source"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// NewSnapshotEvent builds an event from a Record. Derived metrics are not
// carried on the wire; consumers rebuild the Record and recompute them.
func NewSnapshotEvent(r record.Record, source Source, fetchedAt time.Time) SnapshotEvent {
	return SnapshotEvent{
		CommunityName:  r.CommunityName,
		Link:           r.Link,
		ActiveMembers:  r.ActiveMembers,
		OfflineMembers: r.OfflineMembers,
		TotalMembers:   r.TotalMembers,
		Source:         source,
		FetchedAt:      fetchedAt,
	}
}

// Record rebuilds the full Record, derived metrics included.
func (e SnapshotEvent) Record() record.Record {
	return record.New(e.CommunityName, e.Link, e.ActiveMembers, e.OfflineMembers, e.TotalMembers)
}
