// Command analyze parses persisted community records and generates an
// analysis report: a competitive report for a directory of records, or an
// activity report for a single record file.
//
// Usage:
//
//	analyze -d <directory_with_text_files>
//	analyze -f <single_text_file>
//	analyze -d <directory> -s [save_directory]
//	analyze -f <file> -s [save_directory]
//
// Alongside the report text, the numeric series backing the charts are
// written as CSV files for the rendering tooling.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/commpulse/community-pulse/internal/record"
	"github.com/commpulse/community-pulse/internal/report"
	"github.com/commpulse/community-pulse/pkg/config"
	apperrors "github.com/commpulse/community-pulse/pkg/errors"
	"github.com/commpulse/community-pulse/pkg/logger"
)

const usageText = `Community Analysis (analyze)

Usage:
  analyze -d <directory_with_text_files>
  analyze -f <single_text_file>
  analyze -d <directory> -s [save_directory]
  analyze -f <file> -s [save_directory]

Options:
  -d <directory_name>  Analyze all the text files in the given directory
  -f <filename>        Analyze a single text file
  -s [directory_name]  Save analysis results to specified directory
  -u                   Display this usage information
`

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	dir := flag.String("d", "", "directory containing text files with community data")
	file := flag.String("f", "", "single text file with community data")
	saveDir := flag.String("s", "", "save directory for analysis results")
	showUsage := flag.Bool("u", false, "display usage information")
	flag.Parse()

	if *showUsage || (*dir == "" && *file == "") {
		fmt.Print(usageText)
		return
	}

	cfg, err := config.Load(cliConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	// -s without a value falls back to the configured default directory.
	saveRequested := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "s" {
			saveRequested = true
		}
	})
	if saveRequested && *saveDir == "" {
		*saveDir = cfg.Analysis.SaveDir
	}

	var set record.Set
	if *dir != "" {
		set, err = loadDirectory(*dir)
	} else {
		set, err = loadFile(*file)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	text, mode, err := report.Generate(set)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	reportFile := "analysis_report.txt"
	if mode == report.ModeActivity {
		reportFile = "activity_ratio_report.txt"
	}
	if err := os.WriteFile(reportFile, []byte(text), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Analysis report saved as '%s'\n", reportFile)

	// Chart series are a side channel for the rendering tooling; failures
	// are reported but never fail the analysis itself.
	series := chartSeries(set, mode)
	sink := report.CSVSink{Dir: "."}
	if err := sink.Render(series); err != nil {
		slog.Warn("failed to write chart series", "error", err)
	} else {
		for _, sr := range series {
			fmt.Printf("Saved chart series as '%s.csv'\n", sr.Name)
		}
	}

	if saveRequested {
		artifacts := []string{reportFile}
		for _, sr := range series {
			artifacts = append(artifacts, sr.Name+".csv")
		}
		if err := saveResults(*saveDir, artifacts); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving results: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nAnalysis results saved to directory: %s\n", *saveDir)
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

func chartSeries(set record.Set, mode report.Mode) []report.Series {
	if mode == report.ModeActivity {
		return report.BreakdownSeries(set[0])
	}
	return report.ChartSeries(set)
}

// loadDirectory parses every .txt file in dir, in filename order so finding
// ties resolve reproducibly. Malformed records are skipped with a warning;
// an error is returned only when nothing parses.
func loadDirectory(dir string) (record.Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var set record.Set
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable file", "path", path, "error", err)
			continue
		}
		rec, err := record.Parse(string(data))
		if err != nil {
			if errors.Is(err, apperrors.ErrMalformedRecord) {
				slog.Warn("skipping malformed record", "path", path, "error", err)
				continue
			}
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		set = append(set, rec)
	}
	if len(set) == 0 {
		return nil, apperrors.Newf(apperrors.ErrEmptyInput, 422,
			"no parsable records in %s", dir)
	}
	return set, nil
}

func loadFile(path string) (record.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rec, err := record.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return record.Set{rec}, nil
}

// saveResults copies artifacts into dir with a timestamp appended to each
// base name, creating dir if needed. Missing artifacts are skipped.
func saveResults(dir string, artifacts []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	stamp := time.Now().Format("20060102_150405")
	for _, name := range artifacts {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		dst := filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, stamp, ext))
		if err := copyFile(name, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
