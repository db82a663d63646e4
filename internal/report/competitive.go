package report

import (
	"fmt"
	"strings"

	"github.com/commpulse/community-pulse/internal/ranking"
	"github.com/commpulse/community-pulse/internal/record"
	apperrors "github.com/commpulse/community-pulse/pkg/errors"
)

// Competitive builds the multi-community competitive analysis report: a
// market overview, the three full rankings (no top-N truncation), and the
// key findings block. It requires at least two records.
//
// "Highest" findings resolve ties by first record encountered at the
// maximum, so callers wanting reproducible output should order the set
// deterministically (the analyze CLI sorts directory entries by filename).
func Competitive(set record.Set) (string, error) {
	if len(set) < 2 {
		return "", apperrors.Newf(apperrors.ErrEmptyInput, 422,
			"competitive report requires at least 2 records, got %d", len(set))
	}

	sizes := make([]float64, len(set))
	rates := make([]float64, len(set))
	var totalMembers int
	for i, r := range set {
		sizes[i] = float64(r.TotalMembers)
		rates[i] = r.EngagementRate
		totalMembers += r.TotalMembers
	}

	var b strings.Builder
	b.WriteString("=== Communities Competitive Analysis Report ===\n\n")

	b.WriteString("MARKET OVERVIEW:\n")
	fmt.Fprintf(&b, "Total communities analyzed: %d\n", len(set))
	fmt.Fprintf(&b, "Average community size: %.0f members\n", mean(sizes))
	fmt.Fprintf(&b, "Average engagement rate: %s\n", percent2(mean(rates)))
	fmt.Fprintf(&b, "Market size (total members across all communities): %s\n\n",
		groupThousands(totalMembers))

	b.WriteString("ALL COMMUNITIES RANKED BY SIZE (Largest to Smallest):\n")
	b.WriteString(sizeTable(ranking.Rank(set, ranking.BySize)))

	b.WriteString("\n\nALL COMMUNITIES RANKED BY ENGAGEMENT RATE (Highest to Lowest):\n")
	b.WriteString(engagementTable(ranking.Rank(set, ranking.ByEngagement)))

	b.WriteString("\n\nALL COMMUNITIES RANKED BY ACTIVITY RATIO (Most to Least Active):\n")
	b.WriteString(activityTable(ranking.Rank(set, ranking.ByActivity)))

	b.WriteString("\n\nKEY FINDINGS:\n")
	mostEngaged := maxBy(set, func(r record.Record) float64 { return r.EngagementRate })
	largest := maxBy(set, func(r record.Record) float64 { return float64(r.TotalMembers) })
	fmt.Fprintf(&b, "- Most engaged community: %s (%s engagement rate)\n",
		mostEngaged.CommunityName, percent2(mostEngaged.EngagementRate))
	fmt.Fprintf(&b, "- Largest community: %s (%s members)\n",
		largest.CommunityName, groupThousands(largest.TotalMembers))
	fmt.Fprintf(&b, "- Average engagement rate across all communities: %s\n",
		percent2(mean(rates)))
	fmt.Fprintf(&b, "- Median community size: %.0f members\n", median(sizes))
	fmt.Fprintf(&b, "- Median engagement rate: %s", percent2(median(rates)))

	return b.String(), nil
}

// maxBy returns the first record holding the maximum of the metric.
func maxBy(set record.Set, metric func(record.Record) float64) record.Record {
	best := set[0]
	for _, r := range set[1:] {
		if metric(r) > metric(best) {
			best = r
		}
	}
	return best
}

func sizeTable(view ranking.RankedView) string {
	rows := [][]string{{"rank", "community_name", "total_members", "engagement_rate"}}
	for _, row := range view.Rows {
		rows = append(rows, []string{
			rank1(row.Rank),
			row.CommunityName,
			groupThousands(row.TotalMembers),
			percent2(row.EngagementRate),
		})
	}
	return table(rows)
}

func engagementTable(view ranking.RankedView) string {
	rows := [][]string{{"rank", "community_name", "engagement_rate", "total_members"}}
	for _, row := range view.Rows {
		rows = append(rows, []string{
			rank1(row.Rank),
			row.CommunityName,
			percent2(row.EngagementRate),
			groupThousands(row.TotalMembers),
		})
	}
	return table(rows)
}

func activityTable(view ranking.RankedView) string {
	rows := [][]string{{"rank", "community_name", "active_members", "total_members"}}
	for _, row := range view.Rows {
		rows = append(rows, []string{
			rank1(row.Rank),
			row.CommunityName,
			groupThousands(row.ActiveMembers),
			groupThousands(row.TotalMembers),
		})
	}
	return table(rows)
}
