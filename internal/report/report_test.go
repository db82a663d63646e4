package report

import (
	"errors"
	"strings"
	"testing"

	"github.com/commpulse/community-pulse/internal/record"
	apperrors "github.com/commpulse/community-pulse/pkg/errors"
)

// TestGenerateDispatch verifies mode selection is purely on cardinality.
func TestGenerateDispatch(t *testing.T) {
	one := record.Set{record.New("Solo", "", 10, 90, 100)}
	two := record.Set{
		record.New("First", "", 10, 90, 100),
		record.New("Second", "", 20, 180, 200),
	}

	if _, _, err := Generate(nil); !errors.Is(err, apperrors.ErrEmptyInput) {
		t.Errorf("empty set: err = %v, want ErrEmptyInput", err)
	}

	_, mode, err := Generate(one)
	if err != nil || mode != ModeActivity {
		t.Errorf("single record: mode = %q, err = %v, want activity", mode, err)
	}

	_, mode, err = Generate(two)
	if err != nil || mode != ModeCompetitive {
		t.Errorf("two records: mode = %q, err = %v, want competitive", mode, err)
	}
}

// TestActivityReport checks the single-community report content.
func TestActivityReport(t *testing.T) {
	set := record.Set{record.New("Solo Club", "", 250, 750, 1000)}

	text, err := Activity(set)
	if err != nil {
		t.Fatalf("Activity failed: %v", err)
	}

	for _, want := range []string{
		"ACTIVITY RATIO ANALYSIS - Solo Club",
		"Total Members: 1,000",
		"Active Members: 250",
		"Inactive Members: 750",
		"Engagement Rate: 25.00%",
		"- For every 1 ACTIVE member, there are 3.00 INACTIVE members",
		"- For every 1 INACTIVE member, there are 0.33 ACTIVE members",
		"- 25.0% of the community is currently active",
		"- 75.0% of the community is currently inactive",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q\n%s", want, text)
		}
	}
}

// TestActivityDegenerateCommunity verifies a zero-member community is
// rejected before any ratio work.
func TestActivityDegenerateCommunity(t *testing.T) {
	set := record.Set{record.New("Empty", "", 0, 0, 0)}
	_, err := Activity(set)
	if !errors.Is(err, apperrors.ErrDegenerateCommunity) {
		t.Errorf("err = %v, want ErrDegenerateCommunity", err)
	}
}

// TestActivityZeroDenominatorRatios verifies the sentinel replaces an
// undefined cross-ratio instead of crashing or printing inf.
func TestActivityZeroDenominatorRatios(t *testing.T) {
	// Nobody active: inactive-per-active divides by zero.
	text, err := Activity(record.Set{record.New("Asleep", "", 0, 100, 100)})
	if err != nil {
		t.Fatalf("Activity failed: %v", err)
	}
	if !strings.Contains(text, "there are ∞ INACTIVE members") {
		t.Errorf("missing sentinel for zero active members:\n%s", text)
	}
	if !strings.Contains(text, "there are 0.00 ACTIVE members") {
		t.Errorf("finite ratio missing for zero active members:\n%s", text)
	}

	// Everyone active: active-per-inactive divides by zero.
	text, err = Activity(record.Set{record.New("Awake", "", 100, 0, 100)})
	if err != nil {
		t.Fatalf("Activity failed: %v", err)
	}
	if !strings.Contains(text, "there are ∞ ACTIVE members") {
		t.Errorf("missing sentinel for zero offline members:\n%s", text)
	}
}

// TestCompetitiveRejectsSingleRecord verifies the competitive report refuses
// to rank a single community.
func TestCompetitiveRejectsSingleRecord(t *testing.T) {
	_, err := Competitive(record.Set{record.New("Lonely", "", 1, 1, 2)})
	if !errors.Is(err, apperrors.ErrEmptyInput) {
		t.Errorf("err = %v, want ErrEmptyInput", err)
	}
}

// TestCompetitiveReport checks the overview numbers, the three rankings, and
// the key findings of the multi-community report.
func TestCompetitiveReport(t *testing.T) {
	set := record.Set{
		record.New("Mega", "", 100, 9900, 10000), // engagement 1%
		record.New("Mini", "", 90, 10, 100),      // engagement 90%
		record.New("Mid", "", 450, 450, 900),     // engagement 50%
	}

	text, err := Competitive(set)
	if err != nil {
		t.Fatalf("Competitive failed: %v", err)
	}

	for _, want := range []string{
		"=== Communities Competitive Analysis Report ===",
		"Total communities analyzed: 3",
		"Average community size: 3667 members",
		"Average engagement rate: 47.00%",
		"Market size (total members across all communities): 11,000",
		"ALL COMMUNITIES RANKED BY SIZE (Largest to Smallest):",
		"ALL COMMUNITIES RANKED BY ENGAGEMENT RATE (Highest to Lowest):",
		"ALL COMMUNITIES RANKED BY ACTIVITY RATIO (Most to Least Active):",
		"- Most engaged community: Mini (90.00% engagement rate)",
		"- Largest community: Mega (10,000 members)",
		"- Median community size: 900 members",
		"- Median engagement rate: 50.00%",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q", want)
		}
	}

	// Size ranking order: Mega, Mid, Mini.
	sizeSection := between(text, "RANKED BY SIZE", "RANKED BY ENGAGEMENT")
	if !ordered(sizeSection, "Mega", "Mid", "Mini") {
		t.Errorf("size ranking out of order:\n%s", sizeSection)
	}

	// Engagement ranking order: Mini, Mid, Mega.
	engSection := between(text, "RANKED BY ENGAGEMENT", "RANKED BY ACTIVITY")
	if !ordered(engSection, "Mini", "Mid", "Mega") {
		t.Errorf("engagement ranking out of order:\n%s", engSection)
	}
}

// TestCompetitiveFindingsFirstAtMaximumWins verifies tied maxima resolve to
// the first record in set order.
func TestCompetitiveFindingsFirstAtMaximumWins(t *testing.T) {
	set := record.Set{
		record.New("Early", "", 50, 50, 100),
		record.New("Late", "", 50, 50, 100),
	}

	text, err := Competitive(set)
	if err != nil {
		t.Fatalf("Competitive failed: %v", err)
	}
	if !strings.Contains(text, "- Most engaged community: Early") {
		t.Errorf("tied finding did not pick first record:\n%s", text)
	}
	if !strings.Contains(text, "- Largest community: Early") {
		t.Errorf("tied size finding did not pick first record:\n%s", text)
	}
}

// TestCompetitiveShowsAveragedRanks verifies tied communities display a
// fractional shared rank in the tables.
func TestCompetitiveShowsAveragedRanks(t *testing.T) {
	set := record.Set{
		record.New("Top", "", 10, 990, 1000),
		record.New("TiedA", "", 5, 495, 500),
		record.New("TiedB", "", 5, 495, 500),
	}

	text, err := Competitive(set)
	if err != nil {
		t.Fatalf("Competitive failed: %v", err)
	}
	if !strings.Contains(text, "2.5") {
		t.Errorf("expected averaged rank 2.5 in tables:\n%s", text)
	}
}

func between(s, from, to string) string {
	i := strings.Index(s, from)
	j := strings.Index(s, to)
	if i < 0 || j < 0 || j < i {
		return s
	}
	return s[i:j]
}

func ordered(s string, names ...string) bool {
	last := -1
	for _, name := range names {
		i := strings.Index(s, name)
		if i < 0 || i < last {
			return false
		}
		last = i
	}
	return true
}
