// Package ranking computes ordinal ranks over a set of community records.
// All three supported metrics rank descending (rank 1 = highest value) and
// ties are resolved by averaging: a block of equal values occupying sorted
// positions p..q all receive rank (p+q)/2, so ranks are not necessarily
// integers. Ranks attach to community identity, never to input position.
package ranking

import (
	"sort"

	"github.com/commpulse/community-pulse/internal/record"
)

// Metric selects which derived value a ranking is computed over.
type Metric string

const (
	BySize       Metric = "total_members"
	ByEngagement Metric = "engagement_rate"
	ByActivity   Metric = "active_ratio"
)

// value extracts the metric's value from a record.
func (m Metric) value(r record.Record) float64 {
	switch m {
	case ByEngagement:
		return r.EngagementRate
	case ByActivity:
		return r.ActiveRatio
	default:
		return float64(r.TotalMembers)
	}
}

// Row pairs a record with its rank under one metric.
type Row struct {
	record.Record
	Rank float64
}

// RankedView is a read-only projection of a record set sorted descending by
// one metric. Rows tied on the metric are ordered by community name ascending
// for stable display; their Rank values are equal regardless.
type RankedView struct {
	Metric Metric
	Rows   []Row
}

// Rank sorts the set descending by the given metric and assigns
// tie-averaged competition ranks.
func Rank(set record.Set, metric Metric) RankedView {
	rows := make([]Row, len(set))
	for i, r := range set {
		rows[i] = Row{Record: r}
	}
	sort.Slice(rows, func(i, j int) bool {
		vi, vj := metric.value(rows[i].Record), metric.value(rows[j].Record)
		if vi != vj {
			return vi > vj
		}
		return rows[i].CommunityName < rows[j].CommunityName
	})

	// Walk tie blocks: every row in a block of equal metric values gets the
	// mean of the 1-based positions the block occupies.
	for start := 0; start < len(rows); {
		end := start
		for end+1 < len(rows) &&
			metric.value(rows[end+1].Record) == metric.value(rows[start].Record) {
			end++
		}
		avg := float64(start+1+end+1) / 2
		for i := start; i <= end; i++ {
			rows[i].Rank = avg
		}
		start = end + 1
	}

	return RankedView{Metric: metric, Rows: rows}
}

// Ranks holds the three orthogonal rank assignments for one community.
type Ranks struct {
	Size       float64
	Engagement float64
	Activity   float64
}

// All computes the size, engagement, and activity ranks for every community
// in the set, keyed by community name. The three rankings are independent
// sort orders over the same set, not three separate collections.
func All(set record.Set) map[string]Ranks {
	out := make(map[string]Ranks, len(set))
	for _, row := range Rank(set, BySize).Rows {
		r := out[row.CommunityName]
		r.Size = row.Rank
		out[row.CommunityName] = r
	}
	for _, row := range Rank(set, ByEngagement).Rows {
		r := out[row.CommunityName]
		r.Engagement = row.Rank
		out[row.CommunityName] = r
	}
	for _, row := range Rank(set, ByActivity).Rows {
		r := out[row.CommunityName]
		r.Activity = row.Rank
		out[row.CommunityName] = r
	}
	return out
}
