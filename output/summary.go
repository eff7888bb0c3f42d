package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fbtools/fbtrace/trace"
)

// Summary aggregates counts over a rendered record stream.
type Summary struct {
	Events   int
	Infos    int
	Errors   int
	Warnings int

	byKind map[string]int
	first  time.Time
	last   time.Time
}

func NewSummary() *Summary {
	return &Summary{byKind: make(map[string]int)}
}

// Add accounts one record.
func (s *Summary) Add(rec trace.Record) {
	ev, ok := rec.(trace.Event)
	if !ok {
		s.Infos++
		return
	}
	s.Events++
	kind := trace.KindOf(ev)
	s.byKind[kind.String()]++
	switch kind {
	case trace.KindError:
		s.Errors++
	case trace.KindWarning:
		s.Warnings++
	}
	ts := ev.Time()
	if s.first.IsZero() || ts.Before(s.first) {
		s.first = ts
	}
	if ts.After(s.last) {
		s.last = ts
	}
}

// Print writes the summary sections in the plain text format.
func (s *Summary) Print(w io.Writer) {
	bold := "\033[1m"
	reset := "\033[0m"

	fmt.Fprintln(w, bold+"\nSUMMARY\n"+reset)
	if !s.first.IsZero() {
		fmt.Fprintf(w, "  %-25s : %s\n", "Start date", s.first.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "  %-25s : %s\n", "End date", s.last.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "  %-25s : %s\n", "Duration", s.last.Sub(s.first))
	}
	fmt.Fprintf(w, "  %-25s : %d\n", "Events", s.Events)
	fmt.Fprintf(w, "  %-25s : %d\n", "Entities", s.Infos)
	fmt.Fprintf(w, "  %-25s : %d\n", "Errors", s.Errors)
	fmt.Fprintf(w, "  %-25s : %d\n", "Warnings", s.Warnings)

	if len(s.byKind) == 0 {
		return
	}
	fmt.Fprintln(w, bold+"\nEVENTS BY KIND\n"+reset)
	kinds := make([]string, 0, len(s.byKind))
	for kind := range s.byKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "  %-25s : %d\n", kind, s.byKind[kind])
	}
}

// SummaryJSON is the JSON projection of a Summary.
type SummaryJSON struct {
	StartDate    string         `json:"start_date,omitempty"`
	EndDate      string         `json:"end_date,omitempty"`
	Duration     string         `json:"duration,omitempty"`
	Events       int            `json:"events"`
	Entities     int            `json:"entities"`
	Errors       int            `json:"errors"`
	Warnings     int            `json:"warnings"`
	EventsByKind map[string]int `json:"events_by_kind"`
}

// PrintJSON writes the summary as one JSON object.
func (s *Summary) PrintJSON(w io.Writer) error {
	out := SummaryJSON{
		Events:       s.Events,
		Entities:     s.Infos,
		Errors:       s.Errors,
		Warnings:     s.Warnings,
		EventsByKind: s.byKind,
	}
	if !s.first.IsZero() {
		out.StartDate = s.first.Format(time.RFC3339Nano)
		out.EndDate = s.last.Format(time.RFC3339Nano)
		out.Duration = s.last.Sub(s.first).String()
	}
	enc := json.NewEncoder(w)
	return enc.Encode(recordJSON{Record: "summary", Data: out})
}
