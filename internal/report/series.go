package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/commpulse/community-pulse/internal/record"
)

// Series is a named numeric table handed to the rendering collaborator.
// The core produces the numbers; what the collaborator draws from them (or
// whether it succeeds at all) is not the core's concern.
type Series struct {
	Name   string
	Header []string
	Rows   [][]string
}

// Sink consumes chart series. Implementations live at the edges; the
// default is CSVSink.
type Sink interface {
	Render(series []Series) error
}

// ChartSeries projects the record set into the numeric series backing the
// competitive-mode charts: engagement vs. size, the top communities by
// engagement, and the activity matrix.
func ChartSeries(set record.Set) []Series {
	engagement := Series{
		Name:   "engagement_analysis",
		Header: []string{"community_name", "total_members", "engagement_rate"},
	}
	matrix := Series{
		Name:   "activity_matrix",
		Header: []string{"community_name", "active_ratio", "engagement_rate", "total_members"},
	}
	for _, r := range set {
		engagement.Rows = append(engagement.Rows, []string{
			r.CommunityName,
			strconv.Itoa(r.TotalMembers),
			formatFloat(r.EngagementRate),
		})
		matrix.Rows = append(matrix.Rows, []string{
			r.CommunityName,
			formatFloat(r.ActiveRatio),
			formatFloat(r.EngagementRate),
			strconv.Itoa(r.TotalMembers),
		})
	}

	top := make(record.Set, len(set))
	copy(top, set)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].EngagementRate > top[j].EngagementRate
	})
	if len(top) > 10 {
		top = top[:10]
	}
	topSeries := Series{
		Name:   "top_communities",
		Header: []string{"community_name", "engagement_rate"},
	}
	for _, r := range top {
		topSeries.Rows = append(topSeries.Rows, []string{
			r.CommunityName,
			formatFloat(r.EngagementRate),
		})
	}

	return []Series{engagement, topSeries, matrix}
}

// BreakdownSeries projects a single record into the membership-breakdown
// series backing the single-community charts.
func BreakdownSeries(r record.Record) []Series {
	return []Series{{
		Name:   "membership_breakdown",
		Header: []string{"category", "members"},
		Rows: [][]string{
			{"Active Members", strconv.Itoa(r.ActiveMembers)},
			{"Inactive Members", strconv.Itoa(r.OfflineMembers)},
			{"Total Members", strconv.Itoa(r.TotalMembers)},
		},
	}}
}

// CSVSink writes each series as <dir>/<name>.csv.
type CSVSink struct {
	Dir string
}

func (s CSVSink) Render(series []Series) error {
	for _, sr := range series {
		if err := s.writeOne(sr); err != nil {
			return err
		}
	}
	return nil
}

func (s CSVSink) writeOne(sr Series) error {
	path := filepath.Join(s.Dir, sr.Name+".csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating series file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(sr.Header); err != nil {
		return fmt.Errorf("writing series header: %w", err)
	}
	for _, row := range sr.Rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing series row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing series %s: %w", sr.Name, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
