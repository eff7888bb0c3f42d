package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/fbtools/fbtrace/trace"
)

const eventTimeLayout = "2006-01-02 15:04:05.0000"

// TextRenderer writes records as human readable lines: one header line per
// event followed by indented detail lines, and indented entity descriptions
// for info records. Long SQL and BLR content is wrapped to the terminal
// width.
type TextRenderer struct {
	w     io.Writer
	width int
}

func NewTextRenderer(w io.Writer) *TextRenderer {
	width := 100
	if tw, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && tw > 40 {
		width = tw
	}
	return &TextRenderer{w: w, width: width}
}

func (r *TextRenderer) Render(rec trace.Record) error {
	switch v := rec.(type) {
	case trace.AttachmentInfo:
		return r.printf("    attachment %d: %s  %s:%s  %s  %s:%s%s\n",
			v.AttachmentID, v.Database, v.User, v.Role, v.Charset,
			v.Protocol, v.Address, remoteSuffix(v.RemoteProcess, v.RemotePID))
	case trace.TransactionInfo:
		initial := ""
		if v.InitialID != nil {
			initial = fmt.Sprintf(" initial %d", *v.InitialID)
		}
		return r.printf("    transaction %d (att %d)%s: %s\n",
			v.TransactionID, v.AttachmentID, initial, strings.Join(v.Options, " | "))
	case trace.ServiceInfo:
		return r.printf("    service 0x%X: %s  %s:%s%s\n",
			v.ServiceID, v.User, v.Protocol, v.Address,
			remoteSuffix(v.RemoteProcess, v.RemotePID))
	case trace.SQLInfo:
		if err := r.printf("    sql %d:\n", v.SQLID); err != nil {
			return err
		}
		if v.SQL != nil {
			r.printWrapped(*v.SQL)
		}
		if v.Plan != nil {
			r.printWrapped(*v.Plan)
		}
		return nil
	case trace.ParamSet:
		parts := make([]string, len(v.Params))
		for i, p := range v.Params {
			parts[i] = fmt.Sprintf("%s=%v", p.Type, p.Value)
		}
		return r.printf("    params %d: %s\n", v.ParamID, strings.Join(parts, ", "))
	case trace.Event:
		return r.renderEvent(v)
	}
	return nil
}

func (r *TextRenderer) renderEvent(ev trace.Event) error {
	row := NewEventRow(ev)

	head := fmt.Sprintf("%s  %6d  %-24s %s",
		row.Timestamp.Format(eventTimeLayout), row.EventID, row.Kind,
		strings.Join(eventDetail(row), "  "))
	if row.Status != "" && row.Status != "OK" {
		head += "  [" + row.Status + "]"
	}
	if err := r.printf("%s\n", strings.TrimRight(head, " ")); err != nil {
		return err
	}

	if perf := perfLine(row); perf != "" {
		if err := r.printf("        %s\n", perf); err != nil {
			return err
		}
	}
	for _, d := range row.Details {
		if err := r.printf("        %s\n", d); err != nil {
			return err
		}
	}
	if row.Content != nil {
		for _, line := range strings.Split(*row.Content, "\n") {
			if err := r.printf("        %s\n", line); err != nil {
				return err
			}
		}
	}
	for _, a := range row.Access {
		if err := r.printf("        %s\n", accessLine(a)); err != nil {
			return err
		}
	}
	return nil
}

// eventDetail composes the short per-kind detail of the event header line
// from the populated row fields.
func eventDetail(row EventRow) []string {
	var parts []string
	add := func(format string, args ...any) {
		parts = append(parts, fmt.Sprintf(format, args...))
	}
	if row.Session != "" {
		add("%s", row.Session)
	}
	if row.Database != "" {
		add("%s (%s:%s)", row.Database, row.User, row.Role)
	}
	if row.AttachmentID != nil && row.Database == "" {
		add("att %d", *row.AttachmentID)
	}
	if row.TransactionID != nil {
		add("tra %d", *row.TransactionID)
	}
	if row.NewTransactionID != nil {
		add("new tra %d", *row.NewTransactionID)
	}
	if len(row.Options) > 0 {
		add("(%s)", strings.Join(row.Options, " | "))
	}
	if row.ServiceID != nil {
		add("service 0x%X", *row.ServiceID)
	}
	if row.Action != nil {
		add("%q", *row.Action)
	}
	if row.StatementID != nil && *row.StatementID != 0 {
		add("stmt %d", *row.StatementID)
	}
	if row.SQLID != nil {
		add("sql %d", *row.SQLID)
	}
	if row.ParamID != nil {
		add("params %d", *row.ParamID)
	}
	if row.Name != "" {
		if row.Table != nil {
			add("%s FOR %s (%s)", row.Name, *row.Table, row.TriggerEvent)
		} else if row.TriggerEvent != "" {
			add("%s (%s)", row.Name, row.TriggerEvent)
		} else {
			add("%s", row.Name)
		}
	}
	if row.Records != nil {
		add("%d records", *row.Records)
	}
	if row.Returns != nil {
		add("returns %s=%v", row.Returns.Type, row.Returns.Value)
	}
	if row.Context != "" {
		add("[%s] %s = %q", row.Context, row.Key, row.Value)
	}
	if row.Place != "" {
		add("at %s", row.Place)
	}
	if row.OIT != nil {
		add("oit %d oat %d ost %d next %d", *row.OIT, *row.OAT, *row.OST, *row.Next)
	}
	if row.PrepareTime != nil {
		add("prepared in %d ms", *row.PrepareTime)
	}
	if row.Data != "" {
		first, _, _ := strings.Cut(row.Data, "\n")
		add("%s", first)
	}
	return parts
}

// perfLine rebuilds the counters line in the engine's own format, skipping
// counters that were not logged.
func perfLine(row EventRow) string {
	var parts []string
	if row.RunTime != nil {
		parts = append(parts, strconv.Itoa(*row.RunTime)+" ms")
	}
	if row.Reads != nil {
		parts = append(parts, strconv.Itoa(*row.Reads)+" read(s)")
	}
	if row.Writes != nil {
		parts = append(parts, strconv.Itoa(*row.Writes)+" write(s)")
	}
	if row.Fetches != nil {
		parts = append(parts, strconv.Itoa(*row.Fetches)+" fetch(es)")
	}
	if row.Marks != nil {
		parts = append(parts, strconv.Itoa(*row.Marks)+" mark(s)")
	}
	return strings.Join(parts, ", ")
}

func accessLine(a trace.AccessStats) string {
	parts := []string{a.Table}
	count := func(name string, n int) {
		if n != 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", name, n))
		}
	}
	count("natural", a.Natural)
	count("index", a.Index)
	count("update", a.Update)
	count("insert", a.Insert)
	count("delete", a.Delete)
	count("backout", a.Backout)
	count("purge", a.Purge)
	count("expunge", a.Expunge)
	return strings.Join(parts, " ")
}

func remoteSuffix(process *string, pid *int) string {
	if process == nil {
		return ""
	}
	s := "  " + *process
	if pid != nil {
		s += ":" + strconv.Itoa(*pid)
	}
	return s
}

func (r *TextRenderer) printf(format string, args ...any) error {
	_, err := fmt.Fprintf(r.w, format, args...)
	return err
}

// printWrapped prints text indented, wrapped to the terminal width.
func (r *TextRenderer) printWrapped(text string) {
	const indent = "        "
	limit := r.width - len(indent)
	if limit < 20 {
		limit = 20
	}
	for _, line := range strings.Split(text, "\n") {
		for len(line) > limit {
			cut := strings.LastIndex(line[:limit], " ")
			if cut <= 0 {
				cut = limit
			}
			fmt.Fprintln(r.w, indent+line[:cut])
			line = strings.TrimLeft(line[cut:], " ")
		}
		fmt.Fprintln(r.w, indent+line)
	}
}
