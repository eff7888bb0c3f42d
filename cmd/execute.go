// Package cmd implements the command-line interface for fbtrace.
package cmd

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/fbtools/fbtrace/output"
	"github.com/fbtools/fbtrace/trace"
)

// renderer is satisfied by both output renderers.
type renderer interface {
	Render(trace.Record) error
}

// parseResult holds the outcome of parsing one file. Records are kept in
// file order; a non-nil err means parsing stopped early and records holds
// what was produced before the failure.
type parseResult struct {
	file    string
	records []trace.Record
	err     error
}

// runParse is the main execution function for the root command.
// It orchestrates the processing pipeline:
//  1. Collect input files
//  2. Parse trace files in parallel, one parser instance per file
//  3. Render records and the summary in the requested format
func runParse(cmd *cobra.Command, args []string) {
	startTime := time.Now()

	allFiles := collectFiles(args)
	if len(allFiles) == 0 {
		fmt.Println("[INFO] No trace files found. Exiting.")
		os.Exit(0)
	}
	totalFileSize := calculateTotalFileSize(allFiles)

	results := parseFilesAsync(allFiles)

	var out renderer = output.NewTextRenderer(os.Stdout)
	if jsonFlag {
		out = output.NewJSONRenderer(os.Stdout)
	}
	summary := output.NewSummary()

	rendered := 0
	for _, res := range results {
		if res.err != nil {
			log.Printf("[ERROR] Failed to parse file %s: %v", res.file, res.err)
		}
		for _, rec := range res.records {
			summary.Add(rec)
			if summaryFlag {
				continue
			}
			if errorsOnlyFlag && !isErrorRecord(rec) {
				continue
			}
			if err := out.Render(rec); err != nil {
				log.Fatalf("[ERROR] Failed to write output: %v", err)
			}
			rendered++
		}
	}

	if jsonFlag {
		if summaryFlag {
			if err := summary.PrintJSON(os.Stdout); err != nil {
				log.Fatalf("[ERROR] Failed to write output: %v", err)
			}
		}
		return
	}
	if summaryFlag || !errorsOnlyFlag {
		summary.Print(os.Stdout)
	}
	printProcessingSummary(summary.Events+summary.Infos, time.Since(startTime), totalFileSize)
}

// parseFilesAsync parses the files in parallel with one fresh parser per
// file, preserving the input order in the result slice.
func parseFilesAsync(files []string) []parseResult {
	results := make([]parseResult, len(files))

	numWorkers := determineWorkerCount(len(files))
	if numWorkers == 1 {
		for i, file := range files {
			records, err := parseOneFile(file)
			results[i] = parseResult{file: file, records: records, err: err}
		}
		return results
	}

	indexes := make(chan int, len(files))
	for i := range files {
		indexes <- i
	}
	close(indexes)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				records, err := parseOneFile(files[i])
				results[i] = parseResult{file: files[i], records: records, err: err}
			}
		}()
	}
	wg.Wait()
	return results
}

// parseOneFile runs one parser over one file. Each file is an independent
// trace session, so ids and dedup caches must not leak across files.
func parseOneFile(path string) ([]trace.Record, error) {
	p := trace.NewParser()
	p.FreeStatements = freeStatementsFlag

	out := make(chan trace.Record, 1024)
	var records []trace.Record
	done := make(chan struct{})
	go func() {
		for rec := range out {
			records = append(records, rec)
		}
		close(done)
	}()
	err := p.ParseFile(path, out)
	close(out)
	<-done
	return records, err
}

func isErrorRecord(rec trace.Record) bool {
	ev, ok := rec.(trace.Event)
	if !ok {
		return false
	}
	kind := trace.KindOf(ev)
	return kind == trace.KindError || kind == trace.KindWarning
}

// calculateTotalFileSize computes the total size of all input files.
func calculateTotalFileSize(files []string) int64 {
	var total int64
	for _, file := range files {
		if fi, err := os.Stat(file); err == nil {
			total += fi.Size()
		}
	}
	return total
}

// printProcessingSummary displays a summary line showing processing statistics.
func printProcessingSummary(numRecords int, duration time.Duration, fileSize int64) {
	fmt.Printf("fbtrace – %d records processed in %.2f s (%s)\n",
		numRecords, duration.Seconds(), formatBytes(fileSize))
}

// formatBytes converts a byte count to a human-readable string (KB, MB, GB, etc).
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}

	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(b)/float64(div), "kMGTPE"[exp])
}
