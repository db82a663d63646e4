package report

import (
	"fmt"
	"strings"

	"github.com/commpulse/community-pulse/internal/record"
	apperrors "github.com/commpulse/community-pulse/pkg/errors"
)

// ratioSentinel is printed in place of a cross-ratio whose denominator is
// zero. The upstream analysis tooling divided without a guard here; the
// sentinel keeps the report finite instead of crashing or printing "inf".
const ratioSentinel = "∞"

// Activity builds the single-community activity report: restated totals,
// the two cross-ratios, and the active/inactive percentage findings. It
// requires exactly one record; ranking a single element is meaningless, so
// this mode never consults the ranking engine.
//
// A record with zero total members fails with ErrDegenerateCommunity before
// any ratio work — the percentage findings would be undefined.
func Activity(set record.Set) (string, error) {
	if len(set) != 1 {
		return "", apperrors.Newf(apperrors.ErrEmptyInput, 422,
			"activity report requires exactly 1 record, got %d", len(set))
	}
	r := set[0]
	if r.TotalMembers == 0 {
		return "", apperrors.Newf(apperrors.ErrDegenerateCommunity, 422,
			"community %q has no members", r.CommunityName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ACTIVITY RATIO ANALYSIS - %s\n", r.CommunityName)
	fmt.Fprintf(&b, "Total Members: %s\n", groupThousands(r.TotalMembers))
	fmt.Fprintf(&b, "Active Members: %s\n", groupThousands(r.ActiveMembers))
	fmt.Fprintf(&b, "Inactive Members: %s\n", groupThousands(r.OfflineMembers))
	fmt.Fprintf(&b, "Engagement Rate: %s\n", percent2(r.EngagementRate))

	b.WriteString("\nRATIOS:\n")
	fmt.Fprintf(&b, "- For every 1 ACTIVE member, there are %s INACTIVE members\n",
		crossRatio(r.OfflineMembers, r.ActiveMembers))
	fmt.Fprintf(&b, "- For every 1 INACTIVE member, there are %s ACTIVE members\n",
		crossRatio(r.ActiveMembers, r.OfflineMembers))

	b.WriteString("\nKey Findings:\n")
	fmt.Fprintf(&b, "- %.1f%% of the community is currently active\n",
		float64(r.ActiveMembers)/float64(r.TotalMembers)*100)
	fmt.Fprintf(&b, "- %.1f%% of the community is currently inactive",
		float64(r.OfflineMembers)/float64(r.TotalMembers)*100)

	return b.String(), nil
}

// crossRatio renders numerator/denominator to two decimals, or the sentinel
// when the denominator is zero.
func crossRatio(numerator, denominator int) string {
	if denominator == 0 {
		return ratioSentinel
	}
	return fmt.Sprintf("%.2f", float64(numerator)/float64(denominator))
}
