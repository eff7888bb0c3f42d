package trace

import (
	"strings"
	"time"
)

// Layouts for the timestamps found in trace output. Fractional seconds are
// accepted by time.Parse even when the layout omits them, which covers the
// engine's fixed four-digit fraction.
const (
	headerTimeLayout = "2006-01-02T15:04:05"
	paramDateLayout  = "2006-01-02"
	paramTimeLayout  = "15:04:05"
)

const (
	planSeparator   = "^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^"
	blockSeparator  = "-------------------------------------------------------------------------------"
	accessSeparator = "***************************************************************************************************************"
	accessHeader    = "Table                             Natural     Index    Update    Insert    Delete   Backout     Purge   Expunge"
)

// isEntryHeader reports whether line opens a new trace entry, i.e. whether
// its first field is an engine timestamp. The engine always writes
// fractional seconds; time.Parse would accept their absence, so demand the
// dot explicitly.
func isEntryHeader(line string) bool {
	ts, _, _ := strings.Cut(line, " ")
	if !strings.Contains(ts, ".") {
		return false
	}
	_, err := time.Parse(headerTimeLayout, ts)
	return err == nil
}

// isSessionSuspended recognizes the marker line the engine writes when a
// session's log reaches its size limit.
func isSessionSuspended(line string) bool {
	return strings.Contains(line, "is suspended as its log is full ---")
}

func isPlanSeparator(line string) bool {
	return line == planSeparator
}

// isPerfStart recognizes the "N records fetched" line that opens a
// performance section.
func isPerfStart(line string) bool {
	n, ok := strings.CutSuffix(line, " records fetched")
	return ok && isDigits(n)
}

// isBLRPerfStart recognizes the counters line that terminates BLR/DYN
// content. BLR sections have no "records fetched" line, so the counter
// units are the only terminator.
func isBLRPerfStart(line string) bool {
	for _, part := range strings.Fields(line) {
		switch part {
		case "ms", "fetch(es)", "mark(s)", "read(s)", "write(s)":
			return true
		}
	}
	return false
}

func isParamStart(line string) bool {
	return strings.HasPrefix(line, "param0 = ")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
