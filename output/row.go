// Package output renders parsed trace records as text or JSON lines and
// aggregates the per-run summary.
package output

import (
	"time"

	"github.com/fbtools/fbtrace/trace"
)

// EventRow is the flat, serialization-friendly projection of a trace event.
// Every event kind maps onto the same row shape; fields that do not apply to
// a kind stay at their zero value and are omitted from JSON output. The pump
// sink reuses this projection for its column values.
type EventRow struct {
	EventID   int       `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status,omitempty"`
	Session   string    `json:"session,omitempty"`

	Database      string  `json:"database,omitempty"`
	Charset       string  `json:"charset,omitempty"`
	Protocol      string  `json:"protocol,omitempty"`
	Address       string  `json:"address,omitempty"`
	User          string  `json:"user,omitempty"`
	Role          string  `json:"role,omitempty"`
	RemoteProcess *string `json:"remote_process,omitempty"`
	RemotePID     *int    `json:"remote_pid,omitempty"`

	AttachmentID     *int     `json:"attachment_id,omitempty"`
	TransactionID    *int     `json:"transaction_id,omitempty"`
	NewTransactionID *int     `json:"new_transaction_id,omitempty"`
	Options          []string `json:"options,omitempty"`

	ServiceID  *int64   `json:"service_id,omitempty"`
	Action     *string  `json:"action,omitempty"`
	Parameters []string `json:"parameters,omitempty"`
	Sent       []string `json:"sent,omitempty"`
	Received   []string `json:"received,omitempty"`

	StatementID *int `json:"statement_id,omitempty"`
	SQLID       *int `json:"sql_id,omitempty"`
	ParamID     *int `json:"param_id,omitempty"`
	Records     *int `json:"records,omitempty"`

	Name         string       `json:"name,omitempty"`
	Table        *string      `json:"table,omitempty"`
	TriggerEvent string       `json:"trigger_event,omitempty"`
	Returns      *trace.Param `json:"returns,omitempty"`

	Context string `json:"context,omitempty"`
	Key     string `json:"key,omitempty"`
	Value   string `json:"value,omitempty"`

	Place   string   `json:"place,omitempty"`
	Details []string `json:"details,omitempty"`

	OIT  *int `json:"oit,omitempty"`
	OAT  *int `json:"oat,omitempty"`
	OST  *int `json:"ost,omitempty"`
	Next *int `json:"next,omitempty"`

	PrepareTime *int `json:"prepare_time_ms,omitempty"`
	RunTime     *int `json:"run_time_ms,omitempty"`
	Reads       *int `json:"reads,omitempty"`
	Writes      *int `json:"writes,omitempty"`
	Fetches     *int `json:"fetches,omitempty"`
	Marks       *int `json:"marks,omitempty"`

	Access []trace.AccessStats `json:"access,omitempty"`

	Content *string `json:"content,omitempty"`
	Data    string  `json:"data,omitempty"`
}

func intp(v int) *int     { return &v }
func i64p(v int64) *int64 { return &v }

func (r *EventRow) setAttachment(id int, db, charset, protocol, address, user, role string, remote *string, pid *int) {
	r.AttachmentID = intp(id)
	r.Database = db
	r.Charset = charset
	r.Protocol = protocol
	r.Address = address
	r.User = user
	r.Role = role
	r.RemoteProcess = remote
	r.RemotePID = pid
}

func (r *EventRow) setPerf(runTime, reads, writes, fetches, marks *int) {
	r.RunTime = runTime
	r.Reads = reads
	r.Writes = writes
	r.Fetches = fetches
	r.Marks = marks
}

func (r *EventRow) setStatement(att, tra, stmt, sqlID int) {
	r.AttachmentID = intp(att)
	r.TransactionID = intp(tra)
	r.StatementID = intp(stmt)
	r.SQLID = intp(sqlID)
}

// NewEventRow flattens any trace event into an EventRow.
func NewEventRow(ev trace.Event) EventRow {
	row := EventRow{
		EventID:   ev.ID(),
		Timestamp: ev.Time(),
		Kind:      trace.KindOf(ev).String(),
	}
	switch e := ev.(type) {
	case *trace.EventTraceInit:
		row.Session = e.SessionName
	case *trace.EventTraceSuspend:
		row.Session = e.SessionName
	case *trace.EventTraceFinish:
		row.Session = e.SessionName
	case *trace.EventCreate:
		row.Status = e.Status.String()
		row.setAttachment(e.AttachmentID, e.Database, e.Charset, e.Protocol, e.Address, e.User, e.Role, e.RemoteProcess, e.RemotePID)
	case *trace.EventDrop:
		row.Status = e.Status.String()
		row.setAttachment(e.AttachmentID, e.Database, e.Charset, e.Protocol, e.Address, e.User, e.Role, e.RemoteProcess, e.RemotePID)
	case *trace.EventAttach:
		row.Status = e.Status.String()
		row.setAttachment(e.AttachmentID, e.Database, e.Charset, e.Protocol, e.Address, e.User, e.Role, e.RemoteProcess, e.RemotePID)
	case *trace.EventDetach:
		row.Status = e.Status.String()
		row.setAttachment(e.AttachmentID, e.Database, e.Charset, e.Protocol, e.Address, e.User, e.Role, e.RemoteProcess, e.RemotePID)
	case *trace.EventTransactionStart:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Options = e.Options
	case *trace.EventCommit:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Options = e.Options
		row.setPerf(e.RunTime, e.Reads, e.Writes, e.Fetches, e.Marks)
	case *trace.EventRollback:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Options = e.Options
		row.setPerf(e.RunTime, e.Reads, e.Writes, e.Fetches, e.Marks)
	case *trace.EventCommitRetaining:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Options = e.Options
		row.NewTransactionID = e.NewTransactionID
		row.setPerf(e.RunTime, e.Reads, e.Writes, e.Fetches, e.Marks)
	case *trace.EventRollbackRetaining:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Options = e.Options
		row.NewTransactionID = e.NewTransactionID
		row.setPerf(e.RunTime, e.Reads, e.Writes, e.Fetches, e.Marks)
	case *trace.EventPrepareStatement:
		row.Status = e.Status.String()
		row.setStatement(e.AttachmentID, e.TransactionID, e.StatementID, e.SQLID)
		row.PrepareTime = e.PrepareTime
	case *trace.EventStatementStart:
		row.Status = e.Status.String()
		row.setStatement(e.AttachmentID, e.TransactionID, e.StatementID, e.SQLID)
		row.ParamID = e.ParamID
	case *trace.EventStatementFinish:
		row.Status = e.Status.String()
		row.setStatement(e.AttachmentID, e.TransactionID, e.StatementID, e.SQLID)
		row.ParamID = e.ParamID
		row.Records = e.Records
		row.setPerf(e.RunTime, e.Reads, e.Writes, e.Fetches, e.Marks)
		row.Access = e.Access
	case *trace.EventFreeStatement:
		row.AttachmentID = intp(e.AttachmentID)
		row.StatementID = intp(e.StatementID)
		row.SQLID = intp(e.SQLID)
	case *trace.EventCloseCursor:
		row.AttachmentID = intp(e.AttachmentID)
		row.StatementID = intp(e.StatementID)
		row.SQLID = intp(e.SQLID)
	case *trace.EventTriggerStart:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Name = e.Trigger
		row.Table = e.Table
		row.TriggerEvent = e.Event
	case *trace.EventTriggerFinish:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Name = e.Trigger
		row.Table = e.Table
		row.TriggerEvent = e.Event
		row.setPerf(e.RunTime, e.Reads, e.Writes, e.Fetches, e.Marks)
		row.Access = e.Access
	case *trace.EventProcedureStart:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Name = e.Procedure
		row.ParamID = e.ParamID
	case *trace.EventProcedureFinish:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Name = e.Procedure
		row.ParamID = e.ParamID
		row.Records = e.Records
		row.setPerf(e.RunTime, e.Reads, e.Writes, e.Fetches, e.Marks)
		row.Access = e.Access
	case *trace.EventFunctionStart:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Name = e.Function
		row.ParamID = e.ParamID
	case *trace.EventFunctionFinish:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Name = e.Function
		row.ParamID = e.ParamID
		returns := e.Returns
		row.Returns = &returns
		row.setPerf(e.RunTime, e.Reads, e.Writes, e.Fetches, e.Marks)
		row.Access = e.Access
	case *trace.EventServiceAttach:
		row.Status = e.Status.String()
		row.ServiceID = i64p(e.ServiceID)
	case *trace.EventServiceDetach:
		row.Status = e.Status.String()
		row.ServiceID = i64p(e.ServiceID)
	case *trace.EventServiceStart:
		row.Status = e.Status.String()
		row.ServiceID = i64p(e.ServiceID)
		action := e.Action
		row.Action = &action
		row.Parameters = e.Parameters
	case *trace.EventServiceQuery:
		row.Status = e.Status.String()
		row.ServiceID = i64p(e.ServiceID)
		row.Action = e.Action
		row.Sent = e.Sent
		row.Received = e.Received
	case *trace.EventSetContext:
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Context = e.Context
		row.Key = e.Key
		row.Value = e.Value
	case *trace.EventError:
		row.AttachmentID = intp(e.AttachmentID)
		row.Place = e.Place
		row.Details = e.Details
	case *trace.EventWarning:
		row.AttachmentID = intp(e.AttachmentID)
		row.Place = e.Place
		row.Details = e.Details
	case *trace.EventServiceError:
		row.ServiceID = i64p(e.ServiceID)
		row.Place = e.Place
		row.Details = e.Details
	case *trace.EventServiceWarning:
		row.ServiceID = i64p(e.ServiceID)
		row.Place = e.Place
		row.Details = e.Details
	case *trace.EventSweepStart:
		row.AttachmentID = intp(e.AttachmentID)
		row.OIT = intp(e.OIT)
		row.OAT = intp(e.OAT)
		row.OST = intp(e.OST)
		row.Next = intp(e.Next)
	case *trace.EventSweepProgress:
		row.AttachmentID = intp(e.AttachmentID)
		row.setPerf(e.RunTime, e.Reads, e.Writes, e.Fetches, e.Marks)
		row.Access = e.Access
	case *trace.EventSweepFinish:
		row.AttachmentID = intp(e.AttachmentID)
		row.OIT = intp(e.OIT)
		row.OAT = intp(e.OAT)
		row.OST = intp(e.OST)
		row.Next = intp(e.Next)
		row.setPerf(e.RunTime, e.Reads, e.Writes, e.Fetches, e.Marks)
		row.Access = e.Access
	case *trace.EventSweepFailed:
		row.AttachmentID = intp(e.AttachmentID)
	case *trace.EventBLRCompile:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.StatementID = e.StatementID
		row.Content = e.Content
		row.PrepareTime = e.PrepareTime
	case *trace.EventBLRExecute:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.StatementID = e.StatementID
		row.Content = e.Content
		row.setPerf(e.RunTime, e.Reads, e.Writes, e.Fetches, e.Marks)
		row.Access = e.Access
	case *trace.EventDYNExecute:
		row.Status = e.Status.String()
		row.AttachmentID = intp(e.AttachmentID)
		row.TransactionID = intp(e.TransactionID)
		row.Content = e.Content
		row.RunTime = e.RunTime
	case *trace.EventUnknown:
		row.Data = e.Data
	}
	return row
}
