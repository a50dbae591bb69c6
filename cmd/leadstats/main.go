package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/ecolote/leadengine/internal/leads"
	"github.com/ecolote/leadengine/pkg/config"
	"github.com/ecolote/leadengine/pkg/db"
	"github.com/ecolote/leadengine/pkg/env"
	"github.com/ecolote/leadengine/pkg/logger"
)

const defaultRunGap = 5 * time.Second

// collectionRun is a burst of leads collected without a pause longer than the gap.
type collectionRun struct {
	Start time.Time
	End   time.Time
	Count int
}

func main() {
	gap := flag.Duration("gap", defaultRunGap, "pause between collected_at values that starts a new collection run")
	termsFlag := flag.String("terms", "", "comma separated terms to report even when they have no leads")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "leadstats"})
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	dbClient, err := db.New(ctx, cfg.DB, nil)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	summary, err := leads.NewRepository(dbClient.DB()).Summary(ctx)
	if err != nil {
		logg.Error(ctx, "failed to summarize leads", err)
		os.Exit(1)
	}

	terms := expectedTerms(*termsFlag, cfg.Candidates.Terms)
	if err := render(os.Stdout, summary, terms, *gap); err != nil {
		logg.Error(ctx, "failed to write report", err)
		os.Exit(1)
	}
}

// expectedTerms merges the flag, LEADSTATS_TERMS and the configured candidate terms.
func expectedTerms(flagValue string, configured []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	add := func(values []string) {
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	add(strings.Split(flagValue, ","))
	add(env.List("LEADSTATS_TERMS"))
	add(configured)
	return out
}

// collectionRuns groups sorted collection timestamps into runs split by gaps larger than gap.
func collectionRuns(times []time.Time, gap time.Duration) []collectionRun {
	if len(times) == 0 {
		return nil
	}
	sorted := append([]time.Time(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	runs := []collectionRun{{Start: sorted[0], End: sorted[0], Count: 1}}
	for _, ts := range sorted[1:] {
		current := &runs[len(runs)-1]
		if ts.Sub(current.End) > gap {
			runs = append(runs, collectionRun{Start: ts, End: ts, Count: 1})
			continue
		}
		current.End = ts
		current.Count++
	}
	return runs
}

func render(out io.Writer, summary *leads.Summary, terms []string, gap time.Duration) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Total leads\t%d\n", summary.Total)
	fmt.Fprintf(w, "Without phone\t%d\n\n", summary.WithoutPhone)

	fmt.Fprintln(w, "TYPE\tLEADS")
	for _, term := range mergeKeys(summary.ByType, terms) {
		fmt.Fprintf(w, "%s\t%d\n", displayTerm(term), summary.ByType[term])
	}

	fmt.Fprintln(w, "\nSTATUS\tLEADS")
	for _, status := range mergeKeys(summary.ByStatus, nil) {
		fmt.Fprintf(w, "%s\t%d\n", status, summary.ByStatus[status])
	}

	runs := collectionRuns(summary.CollectedTimes, gap)
	fmt.Fprintf(w, "\nCollection runs (gap > %s)\t%d\n", gap, len(runs))
	fmt.Fprintln(w, "START\tEND\tLEADS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\n", run.Start.UTC().Format(time.RFC3339), run.End.UTC().Format(time.RFC3339), run.Count)
	}
	return w.Flush()
}

func mergeKeys(counts map[string]int64, extra []string) []string {
	keys := make([]string, 0, len(counts)+len(extra))
	seen := map[string]struct{}{}
	for k := range counts {
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, k := range extra {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func displayTerm(term string) string {
	if term == "" {
		return "(untyped)"
	}
	return term
}
