// Command dcil (Discord Community Information Lookup) fetches community
// membership snapshots from the public invite endpoint and serializes them as
// flat text records for later analysis.
//
// Usage:
//
//	dcil -l <invite_link> [-s <output_file>]
//	dcil -L <file_with_links> [-s <output_file>]
//	dcil -L <file_with_links> -S <base_filename> [-d <directory>]
//
// Snapshot events are additionally published to Kafka when the config
// enables it, and lookups are cached in Redis when that is enabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/commpulse/community-pulse/internal/collector"
	"github.com/commpulse/community-pulse/internal/record"
	"github.com/commpulse/community-pulse/internal/scraper"
	"github.com/commpulse/community-pulse/pkg/config"
	"github.com/commpulse/community-pulse/pkg/kafka"
	"github.com/commpulse/community-pulse/pkg/logger"
	"github.com/commpulse/community-pulse/pkg/metrics"
	pkgredis "github.com/commpulse/community-pulse/pkg/redis"
	"github.com/commpulse/community-pulse/pkg/tracing"
)

const usageText = `Discord Community Information Lookup (DCIL)

Usage:
Basic single community usage:
  dcil -l <invite_link> [-s <output_filename>]

For multiple communities:
  dcil -L <file_with_links> [-s <output_filename>]
  dcil -L <file_with_links> -S <base_filename> [-d <directory_name>]

Required:
  -l <invite_link>     Single community invite link
  OR
  -L <file>            File containing multiple invite links (one per line)

Optional:
  -s <filename>        Save output to a single file (.txt added if missing)
  -S <base_filename>   Save each community to a separate file (only with -L)
                       Files will be named as <base_filename>_<community_name>.txt
  -d <directory>       Directory to save individual files (only with -L and -S)
  -u                   Display this usage information
`

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	link := flag.String("l", "", "single community invite link")
	linksFile := flag.String("L", "", "file containing invite links, one per line")
	saveFile := flag.String("s", "", "save combined output to a single file")
	saveBase := flag.String("S", "", "base filename for individual community files")
	saveDir := flag.String("d", "", "directory for individual files")
	showUsage := flag.Bool("u", false, "display usage information")
	flag.Parse()

	if *showUsage || (*link == "" && *linksFile == "") {
		fmt.Print(usageText)
		return
	}
	if (*saveBase != "" || *saveDir != "") && *linksFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -S and -d flags can only be used with -L flag")
		os.Exit(1)
	}
	if *saveDir != "" && *saveBase == "" {
		fmt.Fprintln(os.Stderr, "Error: -d flag can only be used with -S flag")
		os.Exit(1)
	}

	cfg, err := config.Load(cliConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled && *linksFile != "" {
		// Long batch runs are worth scraping.
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	var cache *pkgredis.Client
	if cfg.Redis.Enabled {
		cache, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, lookups will not be cached", "error", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	var tracker *collector.Tracker
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SnapshotEvents)
		defer producer.Close()
		tracker = collector.NewTracker(producer, 0)
		tracker.Start(ctx)
		defer tracker.Close()
	}

	s := scraper.New(cfg.Scraper, cfg.Redis.CacheTTL, cache, m)

	if *link != "" {
		rec, err := s.Lookup(ctx, *link)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		track(tracker, rec)
		finish([]string{record.Format(rec)}, *saveFile, false)
		return
	}

	links, err := readLinks(*linksFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}
	if *saveDir != "" {
		if err := os.MkdirAll(*saveDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating directory %s: %v\n", *saveDir, err)
			os.Exit(1)
		}
	}

	batchCtx, span := tracing.StartSpan(ctx, "lookup-batch", time.Now().UTC().Format("20060102150405"))
	span.SetAttr("links", len(links))
	results := s.LookupBatch(batchCtx, links)
	span.End()
	span.Log()

	var reports []string
	for _, res := range results {
		if res.Err != nil {
			msg := fmt.Sprintf("Error scraping %s: %v", res.Link, res.Err)
			fmt.Fprintln(os.Stderr, msg)
			reports = append(reports, msg)
			continue
		}
		track(tracker, res.Record)
		text := record.Format(res.Record)
		reports = append(reports, text)

		if *saveBase != "" {
			name := ensureTxtExtension(*saveBase + "_" + sanitizeFilename(res.Record.CommunityName))
			path := name
			if *saveDir != "" {
				path = filepath.Join(*saveDir, name)
			}
			if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing to file %s: %v\n", path, err)
				continue
			}
			fmt.Printf("Saved report for %s to %s\n", res.Record.CommunityName, path)
		}
	}

	finish(reports, *saveFile, *saveBase != "")
}

// track publishes a snapshot event when Kafka is configured.
func track(t *collector.Tracker, rec record.Record) {
	if t == nil {
		return
	}
	t.Track(collector.NewSnapshotEvent(rec, collector.SourceLive, time.Now().UTC()))
}

// finish writes or prints the combined report. When individual files were
// saved and no combined file was requested, nothing further is printed.
func finish(reports []string, saveFile string, savedIndividual bool) {
	combined := strings.Join(reports, "\n\n")
	if saveFile != "" {
		out := ensureTxtExtension(saveFile)
		if err := os.WriteFile(out, []byte(combined), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Combined report saved to %s\n", out)
		return
	}
	if !savedIndividual {
		fmt.Println(combined)
	}
}

// cliConfigPath keeps the tool usable outside a checkout: when the default
// config file is absent and -config was not given, built-in defaults apply.
func cliConfigPath(path string) string {
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	if !explicit {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return ""
		}
	}
	return path
}

// readLinks loads non-empty lines from the links file.
func readLinks(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var links []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			links = append(links, line)
		}
	}
	return links, nil
}

// sanitizeFilename replaces characters that are invalid in filenames.
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		}
		return r
	}, name)
}

func ensureTxtExtension(name string) string {
	if !strings.HasSuffix(strings.ToLower(name), ".txt") {
		return name + ".txt"
	}
	return name
}
