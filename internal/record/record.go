// Package record defines the normalized community membership snapshot and the
// flat text codec used to persist it. A Record carries both raw member counts
// and the derived engagement metrics, which are computed once at construction
// and never recomputed afterwards.
package record

// Record is one community's membership snapshot.
//
// TotalMembers is trusted as supplied: if it disagrees with
// ActiveMembers+OfflineMembers it is still used as the denominator of every
// ratio, without reconciliation.
type Record struct {
	CommunityName  string  `json:"community_name"`
	Link           string  `json:"link,omitempty"`
	ActiveMembers  int     `json:"active_members"`
	OfflineMembers int     `json:"offline_members"`
	TotalMembers   int     `json:"total_members"`
	EngagementRate float64 `json:"engagement_rate"`
	ActiveRatio    float64 `json:"active_ratio"`
}

// New builds a Record from a raw snapshot tuple and attaches the derived
// metrics. This is the entry point for freshly fetched data; parsed text
// records go through Parse, which ends up here as well.
func New(name, link string, active, offline, total int) Record {
	r := Record{
		CommunityName:  name,
		Link:           link,
		ActiveMembers:  active,
		OfflineMembers: offline,
		TotalMembers:   total,
	}
	r.EngagementRate = engagementRate(active, total)
	r.ActiveRatio = activeRatio(active, offline)
	return r
}

// engagementRate is the share of members currently active, as a percentage.
// A community with no members has a rate of 0 rather than a division by zero.
func engagementRate(active, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(active) / float64(total) * 100
}

// activeRatio is active members per offline member. The +1 smoothing term
// keeps the ratio finite when a community has nobody offline; such
// communities get a ratio equal to their raw active count.
func activeRatio(active, offline int) float64 {
	return float64(active) / float64(offline+1)
}

// Set is an ordered collection of Records from one invocation. Multi-community
// operations re-sort by the metric of interest, so insertion order only
// matters for "first at the maximum wins" findings.
type Set []Record
