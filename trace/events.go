// Package trace parses the textual output of the Firebird trace and audit
// facility into structured records.
//
// The trace log is a loosely structured, human readable format: each event is
// a multi-line block opened by a timestamped header line, followed by
// sections (attachment, transaction, SQL text, execution plan, parameters,
// performance counters) whose presence depends on the event kind and on the
// trace session configuration. The parser recognizes every event kind emitted
// by the engine's trace plugin and degrades gracefully for event kinds it
// does not know about.
//
// Two record families are produced. Event records describe one trace entry
// each and carry a monotonically increasing event id. Info records describe
// entities referenced by events (attachments, transactions, services, SQL
// statements, parameter sets) and are emitted once per distinct entity,
// immediately before the first event that references it.
package trace

import (
	"time"
)

// Status is the outcome marker decoded from an event header line.
type Status byte

const (
	StatusOK           Status = ' '
	StatusFailed       Status = 'F'
	StatusUnauthorized Status = 'U'
	StatusUnknown      Status = '?'
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusFailed:
		return "FAILED"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "UNKNOWN"
	}
}

// Kind identifies a trace event kind. The enumeration is closed; names not
// present in the table resolve to KindUnknown so that trace output from newer
// engine versions still parses.
type Kind int

const (
	KindUnknown Kind = iota
	KindTraceInit
	KindTraceSuspended
	KindTraceFinish
	KindCreateDatabase
	KindDropDatabase
	KindAttachDatabase
	KindDetachDatabase
	KindStartTransaction
	KindCommitTransaction
	KindRollbackTransaction
	KindCommitRetaining
	KindRollbackRetaining
	KindPrepareStatement
	KindStatementStart
	KindStatementFinish
	KindFreeStatement
	KindCloseCursor
	KindTriggerStart
	KindTriggerFinish
	KindFunctionStart
	KindFunctionFinish
	KindProcedureStart
	KindProcedureFinish
	KindStartService
	KindAttachService
	KindDetachService
	KindQueryService
	KindSetContext
	KindError
	KindWarning
	KindSweepStart
	KindSweepProgress
	KindSweepFinish
	KindSweepFailed
	KindCompileBLR
	KindExecuteBLR
	KindExecuteDYN
)

var kindNames = map[string]Kind{
	"TRACE_INIT":               KindTraceInit,
	"TRACE_SUSPENDED":          KindTraceSuspended,
	"TRACE_FINI":               KindTraceFinish,
	"CREATE_DATABASE":          KindCreateDatabase,
	"DROP_DATABASE":            KindDropDatabase,
	"ATTACH_DATABASE":          KindAttachDatabase,
	"DETACH_DATABASE":          KindDetachDatabase,
	"START_TRANSACTION":        KindStartTransaction,
	"COMMIT_TRANSACTION":       KindCommitTransaction,
	"ROLLBACK_TRANSACTION":     KindRollbackTransaction,
	"COMMIT_RETAINING":         KindCommitRetaining,
	"ROLLBACK_RETAINING":       KindRollbackRetaining,
	"PREPARE_STATEMENT":        KindPrepareStatement,
	"EXECUTE_STATEMENT_START":  KindStatementStart,
	"EXECUTE_STATEMENT_FINISH": KindStatementFinish,
	"FREE_STATEMENT":           KindFreeStatement,
	"CLOSE_CURSOR":             KindCloseCursor,
	"EXECUTE_TRIGGER_START":    KindTriggerStart,
	"EXECUTE_TRIGGER_FINISH":   KindTriggerFinish,
	"EXECUTE_FUNCTION_START":   KindFunctionStart,
	"EXECUTE_FUNCTION_FINISH":  KindFunctionFinish,
	"EXECUTE_PROCEDURE_START":  KindProcedureStart,
	"EXECUTE_PROCEDURE_FINISH": KindProcedureFinish,
	"START_SERVICE":            KindStartService,
	"ATTACH_SERVICE":           KindAttachService,
	"DETACH_SERVICE":           KindDetachService,
	"QUERY_SERVICE":            KindQueryService,
	"SET_CONTEXT":              KindSetContext,
	"ERROR":                    KindError,
	"WARNING":                  KindWarning,
	"SWEEP_START":              KindSweepStart,
	"SWEEP_PROGRESS":           KindSweepProgress,
	"SWEEP_FINISH":             KindSweepFinish,
	"SWEEP_FAILED":             KindSweepFailed,
	"COMPILE_BLR":              KindCompileBLR,
	"EXECUTE_BLR":              KindExecuteBLR,
	"EXECUTE_DYN":              KindExecuteDYN,
}

var kindStrings = func() map[Kind]string {
	m := make(map[Kind]string, len(kindNames))
	for name, k := range kindNames {
		m[k] = name
	}
	return m
}()

// KindByName resolves an event kind name from a trace header line. Unknown
// names resolve to KindUnknown, never an error.
func KindByName(name string) Kind {
	return kindNames[name]
}

func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return "UNKNOWN"
}

// Record is the common interface of everything yielded by the parser:
// either an Info or an Event.
type Record interface {
	traceRecord()
}

// Info is a side-channel record describing an entity referenced by events.
// Each Info is emitted at most once per distinct entity identity.
type Info interface {
	Record
	traceInfo()
}

// Event is a single parsed trace log entry.
type Event interface {
	Record
	ID() int
	Time() time.Time
}

// Header carries the fields shared by every event record.
type Header struct {
	EventID   int
	Timestamp time.Time
}

func (h Header) ID() int         { return h.EventID }
func (h Header) Time() time.Time { return h.Timestamp }
func (Header) traceRecord()      {}

// Param is one decoded statement/procedure parameter: the declared type name
// and the decoded value (int64, time.Time, decimal.Decimal, string, or nil).
type Param struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// AttachmentInfo describes a database attachment.
type AttachmentInfo struct {
	AttachmentID  int     `json:"attachment_id"`
	Database      string  `json:"database"`
	Charset       string  `json:"charset"`
	Protocol      string  `json:"protocol"`
	Address       string  `json:"address"`
	User          string  `json:"user"`
	Role          string  `json:"role"`
	RemoteProcess *string `json:"remote_process,omitempty"`
	RemotePID     *int    `json:"remote_pid,omitempty"`
}

func (AttachmentInfo) traceRecord() {}
func (AttachmentInfo) traceInfo()   {}

// TransactionInfo describes a transaction. InitialID is set only for
// transactions continued by a retaining commit/rollback.
type TransactionInfo struct {
	AttachmentID  int      `json:"attachment_id"`
	TransactionID int      `json:"transaction_id"`
	InitialID     *int     `json:"initial_id,omitempty"`
	Options       []string `json:"options"`
}

func (TransactionInfo) traceRecord() {}
func (TransactionInfo) traceInfo()   {}

// ServiceInfo describes a service manager attachment. ServiceID is the
// engine-supplied handle value.
type ServiceInfo struct {
	ServiceID     int64   `json:"service_id"`
	User          string  `json:"user"`
	Protocol      string  `json:"protocol"`
	Address       string  `json:"address"`
	RemoteProcess *string `json:"remote_process,omitempty"`
	RemotePID     *int    `json:"remote_pid,omitempty"`
}

func (ServiceInfo) traceRecord() {}
func (ServiceInfo) traceInfo()   {}

// SQLInfo describes a distinct (SQL text, plan text) pair. SQLID is a small
// sequential id assigned at first sight and reused by later events.
type SQLInfo struct {
	SQLID int     `json:"sql_id"`
	SQL   *string `json:"sql,omitempty"`
	Plan  *string `json:"plan,omitempty"`
}

func (SQLInfo) traceRecord() {}
func (SQLInfo) traceInfo()   {}

// ParamSet describes a distinct ordered set of parameter values.
type ParamSet struct {
	ParamID int     `json:"param_id"`
	Params  []Param `json:"params"`
}

func (ParamSet) traceRecord() {}
func (ParamSet) traceInfo()   {}

// AccessStats is one row of the per-table access statistics block attached
// to statement/procedure/trigger/BLR finish events. Empty table cells decode
// as zero.
type AccessStats struct {
	Table   string `json:"table"`
	Natural int    `json:"natural,omitempty"`
	Index   int    `json:"index,omitempty"`
	Update  int    `json:"update,omitempty"`
	Insert  int    `json:"insert,omitempty"`
	Delete  int    `json:"delete,omitempty"`
	Backout int    `json:"backout,omitempty"`
	Purge   int    `json:"purge,omitempty"`
	Expunge int    `json:"expunge,omitempty"`
}

// attachmentFields is embedded by events that carry the full attachment
// descriptor inline.
type attachmentFields struct {
	AttachmentID  int
	Database      string
	Charset       string
	Protocol      string
	Address       string
	User          string
	Role          string
	RemoteProcess *string
	RemotePID     *int
}

// perfFields are the five counters of a performance line. All nil when the
// trace session does not log performance data.
type perfFields struct {
	RunTime *int
	Reads   *int
	Writes  *int
	Fetches *int
	Marks   *int
}

// EventTraceInit reports a started trace session.
type EventTraceInit struct {
	Header
	SessionName string
}

// EventTraceSuspend reports a trace session suspended because its log is
// full. Synthesized from the suspend marker line; the timestamp is reused
// from the preceding event because the marker carries none of its own.
type EventTraceSuspend struct {
	Header
	SessionName string
}

// EventTraceFinish reports a finished trace session.
type EventTraceFinish struct {
	Header
	SessionName string
}

// EventCreate reports a database create.
type EventCreate struct {
	Header
	Status Status
	attachmentFields
}

// EventDrop reports a database drop.
type EventDrop struct {
	Header
	Status Status
	attachmentFields
}

// EventAttach reports a database attach.
type EventAttach struct {
	Header
	Status Status
	attachmentFields
}

// EventDetach reports a database detach.
type EventDetach struct {
	Header
	Status Status
	attachmentFields
}

// EventTransactionStart reports a started transaction.
type EventTransactionStart struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	Options       []string
}

// EventCommit reports a plain (non-retaining) commit.
type EventCommit struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	Options       []string
	perfFields
}

// EventRollback reports a plain (non-retaining) rollback.
type EventRollback struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	Options       []string
	perfFields
}

// EventCommitRetaining reports a commit retaining context.
type EventCommitRetaining struct {
	Header
	Status           Status
	AttachmentID     int
	TransactionID    int
	Options          []string
	NewTransactionID *int
	perfFields
}

// EventRollbackRetaining reports a rollback retaining context.
type EventRollbackRetaining struct {
	Header
	Status           Status
	AttachmentID     int
	TransactionID    int
	Options          []string
	NewTransactionID *int
	perfFields
}

// EventPrepareStatement reports a prepared statement. StatementID is zero
// for ad hoc statements without an id line.
type EventPrepareStatement struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	StatementID   int
	SQLID         int
	PrepareTime   *int
}

// EventStatementStart reports the start of a statement execution.
type EventStatementStart struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	StatementID   int
	SQLID         int
	ParamID       *int
}

// EventStatementFinish reports a finished statement execution.
type EventStatementFinish struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	StatementID   int
	SQLID         int
	ParamID       *int
	Records       *int
	perfFields
	Access []AccessStats
}

// EventFreeStatement reports a released statement handle.
type EventFreeStatement struct {
	Header
	AttachmentID int
	StatementID  int
	SQLID        int
}

// EventCloseCursor reports a closed cursor.
type EventCloseCursor struct {
	Header
	AttachmentID int
	StatementID  int
	SQLID        int
}

// EventTriggerStart reports the start of a trigger execution. Table is nil
// for database-level triggers.
type EventTriggerStart struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	Trigger       string
	Table         *string
	Event         string
}

// EventTriggerFinish reports a finished trigger execution.
type EventTriggerFinish struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	Trigger       string
	Table         *string
	Event         string
	perfFields
	Access []AccessStats
}

// EventProcedureStart reports the start of a stored procedure execution.
type EventProcedureStart struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	Procedure     string
	ParamID       *int
}

// EventProcedureFinish reports a finished stored procedure execution.
type EventProcedureFinish struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	Procedure     string
	ParamID       *int
	Records       *int
	perfFields
	Access []AccessStats
}

// EventFunctionStart reports the start of a stored function execution.
type EventFunctionStart struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	Function      string
	ParamID       *int
}

// EventFunctionFinish reports a finished stored function execution.
type EventFunctionFinish struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	Function      string
	ParamID       *int
	Returns       Param
	perfFields
	Access []AccessStats
}

// EventServiceAttach reports a service manager attach.
type EventServiceAttach struct {
	Header
	Status    Status
	ServiceID int64
}

// EventServiceDetach reports a service manager detach.
type EventServiceDetach struct {
	Header
	Status    Status
	ServiceID int64
}

// EventServiceStart reports a started service action.
type EventServiceStart struct {
	Header
	Status     Status
	ServiceID  int64
	Action     string
	Parameters []string
}

// EventServiceQuery reports a service query. Action is nil when the query
// carries no quoted action line.
type EventServiceQuery struct {
	Header
	Status    Status
	ServiceID int64
	Action    *string
	Sent      []string
	Received  []string
}

// EventSetContext reports a context variable assignment.
type EventSetContext struct {
	Header
	AttachmentID  int
	TransactionID int
	Context       string
	Key           string
	Value         string
}

// EventError reports an engine error raised within an attachment.
type EventError struct {
	Header
	AttachmentID int
	Place        string
	Details      []string
}

// EventWarning reports an engine warning raised within an attachment.
type EventWarning struct {
	Header
	AttachmentID int
	Place        string
	Details      []string
}

// EventServiceError reports an engine error raised within a service.
type EventServiceError struct {
	Header
	ServiceID int64
	Place     string
	Details   []string
}

// EventServiceWarning reports an engine warning raised within a service.
type EventServiceWarning struct {
	Header
	ServiceID int64
	Place     string
	Details   []string
}

// EventSweepStart reports a started database sweep. OIT, OAT, OST and Next
// are the transaction counters at sweep start.
type EventSweepStart struct {
	Header
	AttachmentID int
	OIT          int
	OAT          int
	OST          int
	Next         int
}

// EventSweepProgress reports sweep progress for one relation.
type EventSweepProgress struct {
	Header
	AttachmentID int
	perfFields
	Access []AccessStats
}

// EventSweepFinish reports a finished database sweep.
type EventSweepFinish struct {
	Header
	AttachmentID int
	OIT          int
	OAT          int
	OST          int
	Next         int
	perfFields
	Access []AccessStats
}

// EventSweepFailed reports a failed database sweep.
type EventSweepFailed struct {
	Header
	AttachmentID int
}

// EventBLRCompile reports a compiled BLR request. StatementID is nil when
// the trace omits the statement line, Content is nil when the BLR text is
// not printed.
type EventBLRCompile struct {
	Header
	Status       Status
	AttachmentID int
	StatementID  *int
	Content      *string
	PrepareTime  *int
}

// EventBLRExecute reports an executed BLR request.
type EventBLRExecute struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	StatementID   *int
	Content       *string
	perfFields
	Access []AccessStats
}

// EventDYNExecute reports an executed DYN request.
type EventDYNExecute struct {
	Header
	Status        Status
	AttachmentID  int
	TransactionID int
	Content       *string
	RunTime       *int
}

// EventUnknown captures a trace entry of a kind this parser does not know
// about. Data holds the entry text verbatim, minus the timestamp and thread
// prefix of the header line.
type EventUnknown struct {
	Header
	Data string
}

// KindOf reports the event kind of an event record, or KindUnknown for info
// records and unrecognized types.
func KindOf(r Record) Kind {
	switch r.(type) {
	case *EventTraceInit:
		return KindTraceInit
	case *EventTraceSuspend:
		return KindTraceSuspended
	case *EventTraceFinish:
		return KindTraceFinish
	case *EventCreate:
		return KindCreateDatabase
	case *EventDrop:
		return KindDropDatabase
	case *EventAttach:
		return KindAttachDatabase
	case *EventDetach:
		return KindDetachDatabase
	case *EventTransactionStart:
		return KindStartTransaction
	case *EventCommit:
		return KindCommitTransaction
	case *EventRollback:
		return KindRollbackTransaction
	case *EventCommitRetaining:
		return KindCommitRetaining
	case *EventRollbackRetaining:
		return KindRollbackRetaining
	case *EventPrepareStatement:
		return KindPrepareStatement
	case *EventStatementStart:
		return KindStatementStart
	case *EventStatementFinish:
		return KindStatementFinish
	case *EventFreeStatement:
		return KindFreeStatement
	case *EventCloseCursor:
		return KindCloseCursor
	case *EventTriggerStart:
		return KindTriggerStart
	case *EventTriggerFinish:
		return KindTriggerFinish
	case *EventFunctionStart:
		return KindFunctionStart
	case *EventFunctionFinish:
		return KindFunctionFinish
	case *EventProcedureStart:
		return KindProcedureStart
	case *EventProcedureFinish:
		return KindProcedureFinish
	case *EventServiceStart:
		return KindStartService
	case *EventServiceAttach:
		return KindAttachService
	case *EventServiceDetach:
		return KindDetachService
	case *EventServiceQuery:
		return KindQueryService
	case *EventSetContext:
		return KindSetContext
	case *EventError:
		return KindError
	case *EventWarning:
		return KindWarning
	case *EventServiceError:
		return KindError
	case *EventServiceWarning:
		return KindWarning
	case *EventSweepStart:
		return KindSweepStart
	case *EventSweepProgress:
		return KindSweepProgress
	case *EventSweepFinish:
		return KindSweepFinish
	case *EventSweepFailed:
		return KindSweepFailed
	case *EventBLRCompile:
		return KindCompileBLR
	case *EventBLRExecute:
		return KindExecuteBLR
	case *EventDYNExecute:
		return KindExecuteDYN
	default:
		return KindUnknown
	}
}
