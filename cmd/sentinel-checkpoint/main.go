// Command sentinel-checkpoint inspects baseline checkpoint files written by
// internal/baseline.Store.Checkpoint, without needing a running server.
// Useful for verifying what survived a restart or diagnosing a corrupted
// shard file after a crash.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/llm-sentinel/sentinel/internal/baseline"
)

func main() {
	dir := flag.String("dir", "", "checkpoint directory to inspect")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: sentinel-checkpoint -dir <checkpoint-dir>")
		os.Exit(2)
	}

	matches, err := filepath.Glob(filepath.Join(*dir, "shard-*.sbl"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentinel-checkpoint: %v\n", err)
		os.Exit(1)
	}
	if len(matches) == 0 {
		fmt.Fprintf(os.Stderr, "sentinel-checkpoint: no shard files found in %s\n", *dir)
		os.Exit(1)
	}
	sort.Strings(matches)

	var totalEntries, totalDiscarded int
	for _, path := range matches {
		entries, discarded, err := baseline.InspectShardFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}
		totalDiscarded += discarded
		totalEntries += len(entries)
		for _, e := range entries {
			fmt.Printf("%-30s %-20s %-15s count=%-8d mean=%-12.3f min=%-10.3f max=%-10.3f window=%d\n",
				e.ServiceID, e.ModelID, e.Metric, e.Count, e.Mean, e.Min, e.Max, e.Samples)
		}
		if discarded > 0 {
			fmt.Fprintf(os.Stderr, "%s: discarded %d trailing record(s) after truncation or CRC mismatch\n", path, discarded)
		}
	}

	fmt.Printf("\n%d shard file(s), %d baseline(s), %d discarded record(s)\n", len(matches), totalEntries, totalDiscarded)
	if totalDiscarded > 0 {
		os.Exit(1)
	}
}
