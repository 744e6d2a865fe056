package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/utkarsh5026/batchrun/batch"
	"github.com/utkarsh5026/batchrun/internal/config"
	"github.com/utkarsh5026/batchrun/internal/demo"
)

// maxListed caps how many ids of each kind are printed.
const maxListed = 10

func printConfiguration(cfg config.Config, dir string, total, conns int) {
	_, _ = bold.Println("⚙️  Configuration:")
	fmt.Printf("  Store:            %s (%d documents)\n", dir, total)
	fmt.Printf("  Workers:          %d\n", cfg.WorkerCount)
	fmt.Printf("  Connections:      %d\n", conns)
	fmt.Printf("  Batch Size:       %d\n", cfg.BatchSize)
	fmt.Printf("  Queue High Water: %d\n", cfg.WorkerCount*cfg.QueueHeadroom)
	fmt.Printf("  Retries:          %d (%s backoff, %.1fs)\n", cfg.MaxRetries, cfg.Backoff, cfg.BackoffSeconds)
	fmt.Println()
}

func printReport(r *batch.Report, index *demo.Index) {
	fmt.Println()
	_, _ = bold.Printf("📊 RUN %s\n", r.RunID)
	fmt.Println()

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	rows := [][]string{
		{"Duration", r.Duration.Round(time.Millisecond).String()},
		{"Workers", fmt.Sprint(r.Workers)},
		{"Fetched", fmt.Sprint(r.Fetched)},
		{"Processed", fmt.Sprint(r.Processed)},
		{"Failed items", fmt.Sprint(r.Failed)},
		{"Dropped", fmt.Sprint(r.Dropped())},
		{"Peak queue", fmt.Sprint(r.PeakQueueLen)},
		{"Created", fmt.Sprint(r.Summary.Created.Len())},
		{"Updated", fmt.Sprint(r.Summary.Updated.Len())},
		{"Warnings", fmt.Sprint(r.Summary.Warnings.Len())},
		{"Errors", fmt.Sprint(r.Summary.Errors.Len())},
		{"Indexed documents", fmt.Sprint(index.Len())},
	}
	for _, row := range rows {
		_ = table.Append(row[0], row[1])
	}
	_ = table.Render()
	fmt.Println()

	printIDs(yellow, "⚠  Warnings", r.Summary.Warnings)
	printIDs(red, "✗ Errors", r.Summary.Errors)
	for _, f := range r.Failures {
		_, _ = red.Printf("  worker %d: %v\n", f.WorkerID, f.Err)
	}

	if r.Degraded() {
		_, _ = yellow.Println("Run completed with errors")
	} else {
		_, _ = green.Println("✓ Run completed")
	}
}

func printIDs(c *color.Color, title string, ids batch.IDSet) {
	if ids.Len() == 0 {
		return
	}
	_, _ = c.Printf("%s (%d):\n", title, ids.Len())
	list := ids.Slice()
	for _, id := range list[:min(len(list), maxListed)] {
		fmt.Printf("  • %s\n", id)
	}
	if len(list) > maxListed {
		fmt.Printf("  … and %d more\n", len(list)-maxListed)
	}
	fmt.Println()
}
