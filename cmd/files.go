// Package cmd implements the command-line interface for fbtrace.
package cmd

import (
	"log"
	"os"
	"path/filepath"
	"strings"
)

// collectFiles gathers all trace log files from the provided arguments.
// Arguments can be:
//   - Individual files
//   - Glob patterns (e.g., "*.log")
//   - Directories (scans for supported trace files, non-recursive)
func collectFiles(args []string) []string {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			dirFiles, err := gatherTraceFiles(arg)
			if err != nil {
				log.Printf("[WARN] Failed to read directory %s: %v", arg, err)
				continue
			}
			files = append(files, dirFiles...)
			continue
		}

		// Try to expand as glob pattern
		matches, err := filepath.Glob(arg)
		if err != nil {
			log.Printf("[WARN] Invalid pattern %s: %v", arg, err)
			continue
		}

		if len(matches) == 0 {
			log.Printf("[WARN] No files match pattern: %s", arg)
			continue
		}

		files = append(files, matches...)
	}

	return files
}

// gatherTraceFiles scans a directory for supported trace files (non-recursive).
func gatherTraceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var traceFiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if isSupportedTraceFile(entry.Name()) {
			traceFiles = append(traceFiles, filepath.Join(dir, entry.Name()))
		}
	}

	return traceFiles, nil
}

// isSupportedTraceFile reports whether the file name looks like a trace log.
// Accepted extensions:
//   - .log, .txt, .trace
//   - any of the above with .gz, .zst or .zstd appended
//   - .7z archives of rotated trace logs
func isSupportedTraceFile(name string) bool {
	lower := strings.ToLower(name)
	supported := []string{
		".log",
		".txt",
		".trace",
		".log.gz",
		".txt.gz",
		".trace.gz",
		".log.zst",
		".txt.zst",
		".trace.zst",
		".log.zstd",
		".txt.zstd",
		".trace.zstd",
		".7z",
	}

	for _, ext := range supported {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
