package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog/log"

	"benchsuite/internal/logging"
	"benchsuite/pkg/client"
	"benchsuite/pkg/stats"
)

type FileSummary struct {
	Name                string             `json:"name"`
	Suite               string             `json:"suite"`
	Runners             int                `json:"runners"`
	Failed              int                `json:"failed"`
	Queries             map[string]float64 `json:"queries"` // avg query time in ms across runners
	QuerySetTotal       float64            `json:"querySetTotal"`
	GeometricMean       float64            `json:"geometricMean"`
	GeometricMeanMedian float64            `json:"geometricMeanMedian"`
}

func main() {
	asJSON := flag.Bool("json", false, "Print the summaries as JSON")
	flag.Parse()

	if err := logging.Setup(logging.Config{Format: logging.FormatConsole}, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("setup logging")
	}

	if flag.NArg() < 1 {
		log.Fatal().Msg("At least one filename is required as a positional argument.")
	}

	var summaries []FileSummary
	for _, filename := range flag.Args() {
		summary, err := fileSummary(filename)
		if err != nil {
			log.Fatal().Err(err).Str("file", filename).Msg("Failed to get file summary")
		}
		summaries = append(summaries, summary)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			log.Fatal().Err(err).Msg("encode summaries")
		}
		return
	}
	printSummary(os.Stdout, summaries)
}

func fileSummary(filename string) (FileSummary, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return FileSummary{}, fmt.Errorf("read file: %w", err)
	}

	var report client.SuiteReport
	if err := json.Unmarshal(data, &report); err != nil {
		return FileSummary{}, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return summarize(filepath.Base(filename), report), nil
}

func summarize(name string, report client.SuiteReport) FileSummary {
	summary := FileSummary{
		Name:          name,
		Suite:         report.Suite,
		Runners:       len(report.Runners),
		Failed:        report.Failed,
		Queries:       map[string]float64{},
		QuerySetTotal: report.QuerySetTotal.Avg,
		GeometricMean: report.GeometricMean.Avg,
	}
	if len(report.Runners) == 0 {
		return summary
	}

	summary.GeometricMeanMedian = stats.MedianOf(report.Runners, func(r client.SuiteRunnerStats) float64 {
		return r.GeometricMean
	})

	measured := map[string][]float64{}
	for _, r := range report.Runners {
		for name, op := range r.Queries {
			if len(op.Measurements) > 0 {
				measured[name] = append(measured[name], op.Avg)
			}
		}
	}
	for name, values := range measured {
		summary.Queries[name] = stats.Mean(values)
	}
	return summary
}

func printSummary(w io.Writer, summaries []FileSummary) {
	queries := map[string]struct{}{}
	for _, s := range summaries {
		for name := range s.Queries {
			queries[name] = struct{}{}
		}
	}

	fmt.Fprintln(w, "\nQuery averages (ms):")
	fmt.Fprintf(w, "%-20s", "query")
	for _, s := range summaries {
		fmt.Fprintf(w, " %-20s", s.Name)
	}
	fmt.Fprintln(w)

	for _, name := range slices.Sorted(maps.Keys(queries)) {
		fmt.Fprintf(w, "%-20s", name)
		for _, s := range summaries {
			if v, ok := s.Queries[name]; ok {
				fmt.Fprintf(w, " %-20.2f", v)
			} else {
				fmt.Fprintf(w, " %-20s", "-")
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "\nSummary Table:")
	fmt.Fprintf(w, "%-20s %-10s %-10s %-15s %-15s %-15s\n", "file", "runners", "failed", "querySetTotal", "geomean", "geomeanMedian")
	for _, s := range summaries {
		fmt.Fprintf(w, "%-20s %-10d %-10d %-15.2f %-15.2f %-15.2f\n",
			s.Name, s.Runners, s.Failed, s.QuerySetTotal, s.GeometricMean, s.GeometricMeanMedian)
	}
}
