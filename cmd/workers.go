// Package cmd implements the command-line interface for fbtrace.
package cmd

import "runtime"

// determineWorkerCount calculates the number of parallel workers for parsing
// trace files based on the number of files and available CPU cores.
//
// Strategy:
//   - Single file: no parallelism needed (returns 1)
//   - Multiple files: use up to NumCPU/2 workers to avoid contention
//   - Maximum: cap at 4 workers to prevent excessive context switching
//   - Never create more workers than files
func determineWorkerCount(numFiles int) int {
	if numFiles == 1 {
		return 1
	}

	// Leave headroom for the rendering goroutines.
	maxWorkers := runtime.NumCPU() / 2
	if maxWorkers < 2 {
		maxWorkers = 2
	}
	if maxWorkers > 4 {
		maxWorkers = 4
	}

	if numFiles < maxWorkers {
		return numFiles
	}

	return maxWorkers
}
