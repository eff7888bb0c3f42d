package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fbtools/fbtrace/trace"
)

func TestSummaryCounts(t *testing.T) {
	s := NewSummary()
	for _, rec := range parseLog(t, statementLog) {
		s.Add(rec)
	}
	s.Add(&trace.EventError{
		Header:       trace.Header{EventID: 4, Timestamp: time.Date(2014, 5, 23, 11, 2, 0, 0, time.UTC)},
		AttachmentID: 8,
		Place:        "JStatement::execute",
		Details:      []string{"335544321 : arithmetic exception"},
	})

	if s.Events != 4 {
		t.Errorf("Events = %d, want 4", s.Events)
	}
	if s.Infos != 1 {
		t.Errorf("Infos = %d, want 1", s.Infos)
	}
	if s.Errors != 1 || s.Warnings != 0 {
		t.Errorf("Errors/Warnings = %d/%d, want 1/0", s.Errors, s.Warnings)
	}
}

func TestSummaryPrint(t *testing.T) {
	s := NewSummary()
	for _, rec := range parseLog(t, statementLog) {
		s.Add(rec)
	}
	var buf bytes.Buffer
	s.Print(&buf)
	out := buf.String()
	for _, want := range []string{
		"SUMMARY",
		"EVENTS BY KIND",
		"Start date", "2014-05-23 11:00:28",
		"Events", "Entities",
		"ATTACH_DATABASE", "START_TRANSACTION", "EXECUTE_STATEMENT_FINISH",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestSummaryPrintJSON(t *testing.T) {
	s := NewSummary()
	for _, rec := range parseLog(t, statementLog) {
		s.Add(rec)
	}
	var buf bytes.Buffer
	if err := s.PrintJSON(&buf); err != nil {
		t.Fatalf("PrintJSON: %v", err)
	}
	var env struct {
		Record string      `json:"record"`
		Data   SummaryJSON `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if env.Record != "summary" {
		t.Errorf("record tag = %q, want summary", env.Record)
	}
	if env.Data.Events != 3 || env.Data.Entities != 1 {
		t.Errorf("events/entities = %d/%d, want 3/1", env.Data.Events, env.Data.Entities)
	}
	if env.Data.EventsByKind["EXECUTE_STATEMENT_FINISH"] != 1 {
		t.Errorf("unexpected kind counts %v", env.Data.EventsByKind)
	}
	if env.Data.StartDate == "" || env.Data.Duration == "" {
		t.Errorf("missing time range: %+v", env.Data)
	}
}
