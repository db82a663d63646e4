// Package e2e exercises the full pipeline end to end: a fake invite endpoint
// is scraped, the resulting records are serialized to text files, parsed back,
// and turned into analysis reports with their chart series. No external
// services are required.
package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/commpulse/community-pulse/internal/record"
	"github.com/commpulse/community-pulse/internal/report"
	"github.com/commpulse/community-pulse/internal/scraper"
	"github.com/commpulse/community-pulse/pkg/config"
)

type fakeGuild struct {
	name   string
	total  int
	active int
}

// newInviteEndpoint serves the invite API shape the scraper expects.
func newInviteEndpoint(t *testing.T, guilds map[string]fakeGuild) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimPrefix(r.URL.Path, "/invites/")
		g, ok := guilds[code]
		if !ok {
			http.Error(w, `{"message": "Unknown Invite", "code": 10006}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"guild":                      map[string]any{"name": g.name},
			"approximate_member_count":   g.total,
			"approximate_presence_count": g.active,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newScraper(baseURL string) *scraper.Scraper {
	return scraper.New(config.ScraperConfig{
		BaseURL:        baseURL,
		UserAgent:      "e2e-test",
		RequestTimeout: 5 * time.Second,
		FetchDelay:     0,
		MaxAttempts:    1,
	}, 0, nil, nil)
}

// TestFetchSerializeAnalyze walks the multi-community path: batch lookup,
// per-community text files, directory analysis, competitive report, chart
// series.
func TestFetchSerializeAnalyze(t *testing.T) {
	srv := newInviteEndpoint(t, map[string]fakeGuild{
		"alpha": {"Alpha Squad", 10000, 100},
		"beta":  {"Beta Builders", 100, 90},
		"gamma": {"Gamma Guild", 900, 450},
	})
	s := newScraper(srv.URL)

	results := s.LookupBatch(t.Context(), []string{
		"https://discord.gg/alpha",
		"https://discord.gg/beta",
		"https://discord.gg/gamma",
		"https://discord.gg/expired",
	})

	// Persist the successes the way the lookup tool does, one file each.
	dir := t.TempDir()
	var failures int
	for _, res := range results {
		if res.Err != nil {
			failures++
			continue
		}
		name := strings.ReplaceAll(res.Record.CommunityName, " ", "_") + ".txt"
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(record.Format(res.Record)), 0o644); err != nil {
			t.Fatalf("writing record file: %v", err)
		}
	}
	if failures != 1 {
		t.Fatalf("failures = %d, want 1 (the expired invite)", failures)
	}

	// Parse the directory back, as the analysis tool does.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading record dir: %v", err)
	}
	var set record.Set
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("reading record file: %v", err)
		}
		rec, err := record.Parse(string(data))
		if err != nil {
			t.Fatalf("parsing %s: %v", e.Name(), err)
		}
		set = append(set, rec)
	}
	if len(set) != 3 {
		t.Fatalf("parsed %d records, want 3", len(set))
	}

	text, mode, err := report.Generate(set)
	if err != nil {
		t.Fatalf("generating report: %v", err)
	}
	if mode != report.ModeCompetitive {
		t.Fatalf("mode = %q, want competitive", mode)
	}
	for _, want := range []string{
		"Total communities analyzed: 3",
		"- Most engaged community: Beta Builders (90.00% engagement rate)",
		"- Largest community: Alpha Squad (10,000 members)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q", want)
		}
	}

	// Chart series land as CSVs next to the report.
	outDir := t.TempDir()
	if err := (report.CSVSink{Dir: outDir}).Render(report.ChartSeries(set)); err != nil {
		t.Fatalf("rendering series: %v", err)
	}
	for _, name := range []string{"engagement_analysis.csv", "top_communities.csv", "activity_matrix.csv"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing series file %s: %v", name, err)
		}
	}
}

// TestFetchSingleCommunityActivity walks the single-community path: one
// lookup, one file, the activity report.
func TestFetchSingleCommunityActivity(t *testing.T) {
	srv := newInviteEndpoint(t, map[string]fakeGuild{
		"solo": {"Solo Club", 1000, 250},
	})
	s := newScraper(srv.URL)

	rec, err := s.Lookup(t.Context(), "https://discord.gg/solo")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "solo.txt")
	if err := os.WriteFile(path, []byte(record.Format(rec)), 0o644); err != nil {
		t.Fatalf("writing record file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading record file: %v", err)
	}
	parsed, err := record.Parse(string(data))
	if err != nil {
		t.Fatalf("parsing record: %v", err)
	}

	text, mode, err := report.Generate(record.Set{parsed})
	if err != nil {
		t.Fatalf("generating report: %v", err)
	}
	if mode != report.ModeActivity {
		t.Fatalf("mode = %q, want activity", mode)
	}
	for _, want := range []string{
		"ACTIVITY RATIO ANALYSIS - Solo Club",
		"Engagement Rate: 25.00%",
		"- For every 1 ACTIVE member, there are 3.00 INACTIVE members",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q", want)
		}
	}
}
