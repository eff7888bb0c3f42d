package trace

import (
	"bufio"
	"io"
	"strings"
	"time"
)

// Parser turns Firebird trace log text into Record values. A Parser keeps
// per-stream state (dedup caches, id counters), so use one Parser per trace
// log and do not share it between goroutines.
//
// Two feeding styles are supported. Pull mode reads a whole stream:
// Parse/ParseFile send records to a channel, ParseString collects them into
// a slice. Push mode hands lines in one at a time as they arrive (e.g. from
// a tailed file): Push returns the records completed by each line, Flush
// terminates the stream and yields the final entry.
type Parser struct {
	// FreeStatements declares that the traced engine emits FREE_STATEMENT
	// events. It decides when a statement's entry in the SQL dedup cache is
	// dropped: on FREE_STATEMENT when true (the default), on
	// EXECUTE_STATEMENT_FINISH when false.
	FreeStatements bool

	seenAttachments  map[int]struct{}
	seenTransactions map[int]struct{}
	seenServices     map[int64]struct{}
	sqlIDs           map[sqlKey]int
	paramIDs         map[string]int

	nextEventID int
	nextSQLID   int
	nextParamID int

	infos         []Record
	pushed        []string
	lastTimestamp time.Time
}

// NewParser returns a Parser with empty caches and id counters starting
// at 1.
func NewParser() *Parser {
	return &Parser{
		FreeStatements:   true,
		seenAttachments:  make(map[int]struct{}),
		seenTransactions: make(map[int]struct{}),
		seenServices:     make(map[int64]struct{}),
		sqlIDs:           make(map[sqlKey]int),
		paramIDs:         make(map[string]int),
		nextEventID:      1,
		nextSQLID:        1,
		nextParamID:      1,
	}
}

// Parse reads trace output from r and sends every parsed record to out.
// The channel is left open; closing it is the caller's business.
func (p *Parser) Parse(r io.Reader, out chan<- Record) error {
	return p.run(r, func(rec Record) error {
		out <- rec
		return nil
	})
}

// ParseString parses a complete trace log held in memory.
func (p *Parser) ParseString(s string) ([]Record, error) {
	var out []Record
	err := p.run(strings.NewReader(s), func(rec Record) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Push feeds one line of trace output. It returns the records completed by
// this line: nil while the current entry is still being collected, or the
// finished event preceded by its info records once the line opens the next
// entry. A line that arrives before any entry header is an error, since in
// a live feed there is nothing it could belong to.
func (p *Parser) Push(line string) ([]Record, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	done, orphan := p.step(line)
	if orphan {
		return nil, parseErrorf(line, "unrecognized trace line")
	}
	if done == nil {
		return nil, nil
	}
	event, err := p.parseBlock(done)
	if err != nil {
		return nil, err
	}
	return append(p.takeInfos(), event), nil
}

// step folds one trimmed, non-empty line into the entry accumulator. It
// returns the lines of the entry completed by this line, if any. orphan
// reports a line arriving before any entry header; the caller decides
// whether that is an error (push mode) or noise to skip (pull mode).
func (p *Parser) step(line string) (done []string, orphan bool) {
	if len(p.pushed) == 0 {
		if !isEntryHeader(line) {
			return nil, true
		}
		p.pushed = []string{line}
		return nil, false
	}
	if isEntryHeader(line) || isSessionSuspended(line) {
		done = p.pushed
		p.pushed = []string{line}
		return done, false
	}
	p.pushed = append(p.pushed, line)
	return nil, false
}

// Flush terminates a push-mode stream, parsing the entry collected so far.
func (p *Parser) Flush() ([]Record, error) {
	if len(p.pushed) == 0 {
		return nil, nil
	}
	lines := p.pushed
	p.pushed = nil
	event, err := p.parseBlock(lines)
	if err != nil {
		return nil, err
	}
	return append(p.takeInfos(), event), nil
}

// run is the pull-mode loop: it drives the same stepping core as Push and
// emits each completed block's records. Text before the first entry header
// is discarded, since trace logs routinely open mid-entry after rotation.
func (p *Parser) run(r io.Reader, emit func(Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	flush := func(lines []string) error {
		event, err := p.parseBlock(lines)
		if err != nil {
			return err
		}
		for _, info := range p.takeInfos() {
			if err := emit(info); err != nil {
				return err
			}
		}
		return emit(event)
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		done, _ := p.step(line)
		if done != nil {
			if err := flush(done); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if len(p.pushed) > 0 {
		lines := p.pushed
		p.pushed = nil
		return flush(lines)
	}
	return nil
}

func (p *Parser) takeInfos() []Record {
	infos := p.infos
	p.infos = nil
	return infos
}

// identifyEvent decodes the event kind from an entry header line. Unknown
// kind names fall back to KindUnknown; a header that does not follow the
// "timestamp (thread) [STATUS] KIND" shape at all is an error.
func identifyEvent(line string) (Kind, error) {
	items := strings.Fields(line)
	if len(items) < 3 {
		return KindUnknown, parseErrorf(line, "unrecognized event header")
	}
	switch {
	case len(items) == 3 || items[2] == "ERROR" || items[2] == "WARNING":
		return KindByName(items[2]), nil
	case items[2] == "UNAUTHORIZED" || items[2] == "FAILED":
		if len(items) < 4 {
			return KindUnknown, parseErrorf(line, "unrecognized event header")
		}
		return KindByName(items[3]), nil
	case items[2] == "Unknown":
		return KindUnknown, nil
	}
	return KindUnknown, parseErrorf(line, "unrecognized event header")
}

// parseHeader consumes the entry header line, advancing the event id
// counter and remembering the timestamp for suspend markers.
func (p *Parser) parseHeader(b *block) (Header, Status, error) {
	line, err := b.mustPop()
	if err != nil {
		return Header{}, StatusUnknown, err
	}
	items := strings.Fields(line)
	if len(items) < 3 {
		return Header{}, StatusUnknown, parseErrorf(line, "unrecognized event header")
	}
	ts, err := time.Parse(headerTimeLayout, items[0])
	if err != nil {
		return Header{}, StatusUnknown, parseErrorf(line, "invalid event timestamp")
	}
	p.lastTimestamp = ts
	var status Status
	switch {
	case len(items) == 3 || items[2] == "ERROR" || items[2] == "WARNING":
		status = StatusOK
	case items[2] == "UNAUTHORIZED":
		status = StatusUnauthorized
	case items[2] == "FAILED":
		status = StatusFailed
	case items[2] == "Unknown":
		status = StatusUnknown
	default:
		return Header{}, StatusUnknown, parseErrorf(line, "unrecognized event header")
	}
	hdr := Header{EventID: p.nextEventID, Timestamp: ts}
	p.nextEventID++
	return hdr, status, nil
}

// parseBlock parses one complete entry block into its event record, queueing
// info records on the parser as a side effect.
func (p *Parser) parseBlock(lines []string) (Event, error) {
	b := newBlock(lines)
	first, ok := b.front()
	if !ok {
		return nil, &ParseError{Msg: "empty trace entry"}
	}
	if isSessionSuspended(first) {
		return p.parseTraceSuspend(b)
	}
	kind, err := identifyEvent(first)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindTraceInit:
		return p.parseTraceInit(b)
	case KindTraceFinish:
		return p.parseTraceFinish(b)
	case KindCreateDatabase, KindDropDatabase, KindAttachDatabase, KindDetachDatabase:
		return p.parseAttachmentEvent(b, kind)
	case KindStartTransaction:
		return p.parseTransactionStart(b)
	case KindCommitTransaction, KindRollbackTransaction:
		return p.parseTransactionEnd(b, kind)
	case KindCommitRetaining, KindRollbackRetaining:
		return p.parseTransactionRetaining(b, kind)
	case KindPrepareStatement:
		return p.parsePrepareStatement(b)
	case KindStatementStart:
		return p.parseStatementStart(b)
	case KindStatementFinish:
		return p.parseStatementFinish(b)
	case KindFreeStatement, KindCloseCursor:
		return p.parseStatementRelease(b, kind)
	case KindTriggerStart:
		return p.parseTriggerStart(b)
	case KindTriggerFinish:
		return p.parseTriggerFinish(b)
	case KindProcedureStart:
		return p.parseProcedureStart(b)
	case KindProcedureFinish:
		return p.parseProcedureFinish(b)
	case KindFunctionStart:
		return p.parseFunctionStart(b)
	case KindFunctionFinish:
		return p.parseFunctionFinish(b)
	case KindStartService:
		return p.parseServiceStart(b)
	case KindAttachService, KindDetachService:
		return p.parseServiceAttachment(b, kind)
	case KindQueryService:
		return p.parseServiceQuery(b)
	case KindSetContext:
		return p.parseSetContext(b)
	case KindError:
		return p.parseErrorEvent(b, false)
	case KindWarning:
		return p.parseErrorEvent(b, true)
	case KindSweepStart:
		return p.parseSweepStart(b)
	case KindSweepProgress:
		return p.parseSweepProgress(b)
	case KindSweepFinish:
		return p.parseSweepFinish(b)
	case KindSweepFailed:
		return p.parseSweepFailed(b)
	case KindCompileBLR:
		return p.parseBLRCompile(b)
	case KindExecuteBLR:
		return p.parseBLRExecute(b)
	case KindExecuteDYN:
		return p.parseDYNExecute(b)
	default:
		return p.parseUnknown(b)
	}
}

// parseTraceSuspend synthesizes an event for the suspend marker line, which
// has no header of its own; the previous entry's timestamp is reused.
func (p *Parser) parseTraceSuspend(b *block) (Event, error) {
	line, _ := b.popFront()
	idx := strings.Index(line, " is suspended")
	if idx < 4 {
		return nil, parseErrorf(line, "malformed suspend marker")
	}
	hdr := Header{EventID: p.nextEventID, Timestamp: p.lastTimestamp}
	p.nextEventID++
	name := strings.ToUpper(strings.ReplaceAll(line[4:idx], " ", "_"))
	return &EventTraceSuspend{Header: hdr, SessionName: name}, nil
}

func (p *Parser) parseTraceInit(b *block) (Event, error) {
	hdr, _, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	name, err := b.mustPop()
	if err != nil {
		return nil, err
	}
	return &EventTraceInit{Header: hdr, SessionName: name}, nil
}

func (p *Parser) parseTraceFinish(b *block) (Event, error) {
	hdr, _, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	name, err := b.mustPop()
	if err != nil {
		return nil, err
	}
	return &EventTraceFinish{Header: hdr, SessionName: name}, nil
}

// parseAttachmentEvent covers database create/drop/attach/detach, which all
// consist of the header plus the attachment description. The event carries
// the description itself, so no AttachmentInfo is emitted; detach evicts the
// id from the dedup cache.
func (p *Parser) parseAttachmentEvent(b *block, kind Kind) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	att, err := p.parseAttachmentInfo(b, false)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindCreateDatabase:
		return &EventCreate{Header: hdr, Status: status, attachmentFields: att}, nil
	case KindDropDatabase:
		return &EventDrop{Header: hdr, Status: status, attachmentFields: att}, nil
	case KindAttachDatabase:
		return &EventAttach{Header: hdr, Status: status, attachmentFields: att}, nil
	default:
		delete(p.seenAttachments, att.AttachmentID)
		return &EventDetach{Header: hdr, Status: status, attachmentFields: att}, nil
	}
}

func (p *Parser) parseTransactionStart(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	att, err := p.parseAttachmentInfo(b, true)
	if err != nil {
		return nil, err
	}
	tr, err := p.parseTransactionInfo(b, att.AttachmentID, false)
	if err != nil {
		return nil, err
	}
	return &EventTransactionStart{
		Header:        hdr,
		Status:        status,
		AttachmentID:  att.AttachmentID,
		TransactionID: tr.TransactionID,
		Options:       tr.Options,
	}, nil
}

// parseTransactionEnd covers plain commit and rollback, which evict the
// transaction from the dedup cache.
func (p *Parser) parseTransactionEnd(b *block, kind Kind) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	att, err := p.parseAttachmentInfo(b, true)
	if err != nil {
		return nil, err
	}
	tr, err := p.parseTransactionInfo(b, att.AttachmentID, false)
	if err != nil {
		return nil, err
	}
	pf, err := parseTransactionPerf(b)
	if err != nil {
		return nil, err
	}
	delete(p.seenTransactions, tr.TransactionID)
	if kind == KindCommitTransaction {
		return &EventCommit{
			Header: hdr, Status: status,
			AttachmentID: att.AttachmentID, TransactionID: tr.TransactionID,
			Options: tr.Options, perfFields: pf,
		}, nil
	}
	return &EventRollback{
		Header: hdr, Status: status,
		AttachmentID: att.AttachmentID, TransactionID: tr.TransactionID,
		Options: tr.Options, perfFields: pf,
	}, nil
}

// parseTransactionRetaining covers commit/rollback retaining. The
// transaction lives on under a new number, so nothing is evicted.
func (p *Parser) parseTransactionRetaining(b *block, kind Kind) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	att, err := p.parseAttachmentInfo(b, true)
	if err != nil {
		return nil, err
	}
	tr, err := p.parseTransactionInfo(b, att.AttachmentID, false)
	if err != nil {
		return nil, err
	}
	var newID *int
	if line, ok := b.front(); ok && strings.HasPrefix(line, "New number") {
		b.popFront()
		n, err := parseInt(strings.TrimPrefix(strings.TrimSpace(line), "New number"), "new transaction id")
		if err != nil {
			return nil, err
		}
		newID = &n
	}
	pf, err := parseTransactionPerf(b)
	if err != nil {
		return nil, err
	}
	if kind == KindCommitRetaining {
		return &EventCommitRetaining{
			Header: hdr, Status: status,
			AttachmentID: att.AttachmentID, TransactionID: tr.TransactionID,
			Options: tr.Options, NewTransactionID: newID, perfFields: pf,
		}, nil
	}
	return &EventRollbackRetaining{
		Header: hdr, Status: status,
		AttachmentID: att.AttachmentID, TransactionID: tr.TransactionID,
		Options: tr.Options, NewTransactionID: newID, perfFields: pf,
	}, nil
}

// parseAttachmentAndTransaction consumes the attachment and transaction
// sections shared by statement, procedure, trigger and context events,
// announcing both entities.
func (p *Parser) parseAttachmentAndTransaction(b *block) (attID, trID int, err error) {
	att, err := p.parseAttachmentInfo(b, true)
	if err != nil {
		return 0, 0, err
	}
	tr, err := p.parseTransactionInfo(b, att.AttachmentID, true)
	if err != nil {
		return 0, 0, err
	}
	return att.AttachmentID, tr.TransactionID, nil
}

func (p *Parser) parsePrepareStatement(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	attID, trID, err := p.parseAttachmentAndTransaction(b)
	if err != nil {
		return nil, err
	}
	stmtID, err := parseStatementID(b, status)
	if err != nil {
		return nil, err
	}
	prepTime, err := parsePrepareTime(b)
	if err != nil {
		return nil, err
	}
	sql := parseSQL(b)
	plan, err := parsePlan(b)
	if err != nil {
		return nil, err
	}
	return &EventPrepareStatement{
		Header: hdr, Status: status,
		AttachmentID: attID, TransactionID: trID, StatementID: stmtID,
		SQLID: p.resolveSQLID(sql, plan), PrepareTime: prepTime,
	}, nil
}

func (p *Parser) parseStatementStart(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	attID, trID, err := p.parseAttachmentAndTransaction(b)
	if err != nil {
		return nil, err
	}
	stmtID, err := parseStatementID(b, status)
	if err != nil {
		return nil, err
	}
	sql := parseSQL(b)
	plan, err := parsePlan(b)
	if err != nil {
		return nil, err
	}
	paramID, err := p.parseParameters(b)
	if err != nil {
		return nil, err
	}
	return &EventStatementStart{
		Header: hdr, Status: status,
		AttachmentID: attID, TransactionID: trID, StatementID: stmtID,
		SQLID: p.resolveSQLID(sql, plan), ParamID: paramID,
	}, nil
}

func (p *Parser) parseStatementFinish(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	attID, trID, err := p.parseAttachmentAndTransaction(b)
	if err != nil {
		return nil, err
	}
	stmtID, err := parseStatementID(b, status)
	if err != nil {
		return nil, err
	}
	sql := parseSQL(b)
	plan, err := parsePlan(b)
	if err != nil {
		return nil, err
	}
	paramID, err := p.parseParameters(b)
	if err != nil {
		return nil, err
	}
	perf, err := parsePerformance(b)
	if err != nil {
		return nil, err
	}
	sqlID := p.resolveSQLID(sql, plan)
	if !p.FreeStatements {
		p.forgetSQL(sql, plan)
	}
	return &EventStatementFinish{
		Header: hdr, Status: status,
		AttachmentID: attID, TransactionID: trID, StatementID: stmtID,
		SQLID: sqlID, ParamID: paramID,
		Records: perf.Records, perfFields: perf.perfFields, Access: perf.Access,
	}, nil
}

// parseStatementRelease covers FREE_STATEMENT and CLOSE_CURSOR. Both carry
// the attachment but no transaction; FREE_STATEMENT additionally retires
// the statement's SQL dedup cache entry.
func (p *Parser) parseStatementRelease(b *block, kind Kind) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	att, err := p.parseAttachmentInfo(b, true)
	if err != nil {
		return nil, err
	}
	stmtID, err := parseStatementID(b, status)
	if err != nil {
		return nil, err
	}
	sql := parseSQL(b)
	plan, err := parsePlan(b)
	if err != nil {
		return nil, err
	}
	sqlID := p.resolveSQLID(sql, plan)
	if kind == KindFreeStatement {
		p.forgetSQL(sql, plan)
		return &EventFreeStatement{Header: hdr, AttachmentID: att.AttachmentID, StatementID: stmtID, SQLID: sqlID}, nil
	}
	return &EventCloseCursor{Header: hdr, AttachmentID: att.AttachmentID, StatementID: stmtID, SQLID: sqlID}, nil
}

func (p *Parser) parseTriggerStart(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	attID, trID, err := p.parseAttachmentAndTransaction(b)
	if err != nil {
		return nil, err
	}
	trigger, table, event, err := parseTrigger(b)
	if err != nil {
		return nil, err
	}
	return &EventTriggerStart{
		Header: hdr, Status: status,
		AttachmentID: attID, TransactionID: trID,
		Trigger: trigger, Table: table, Event: event,
	}, nil
}

func (p *Parser) parseTriggerFinish(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	attID, trID, err := p.parseAttachmentAndTransaction(b)
	if err != nil {
		return nil, err
	}
	trigger, table, event, err := parseTrigger(b)
	if err != nil {
		return nil, err
	}
	perf, err := parsePerformance(b)
	if err != nil {
		return nil, err
	}
	return &EventTriggerFinish{
		Header: hdr, Status: status,
		AttachmentID: attID, TransactionID: trID,
		Trigger: trigger, Table: table, Event: event,
		perfFields: perf.perfFields, Access: perf.Access,
	}, nil
}

// parseRoutineName consumes a "Procedure NAME:" or "Function NAME:" line.
func parseRoutineName(b *block) (string, error) {
	line, err := b.mustPop()
	if err != nil {
		return "", err
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", parseErrorf(line, "malformed routine name")
	}
	return strings.TrimSuffix(fields[1], ":"), nil
}

func (p *Parser) parseProcedureStart(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	attID, trID, err := p.parseAttachmentAndTransaction(b)
	if err != nil {
		return nil, err
	}
	name, err := parseRoutineName(b)
	if err != nil {
		return nil, err
	}
	paramID, err := p.parseParameters(b)
	if err != nil {
		return nil, err
	}
	return &EventProcedureStart{
		Header: hdr, Status: status,
		AttachmentID: attID, TransactionID: trID,
		Procedure: name, ParamID: paramID,
	}, nil
}

func (p *Parser) parseProcedureFinish(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	attID, trID, err := p.parseAttachmentAndTransaction(b)
	if err != nil {
		return nil, err
	}
	name, err := parseRoutineName(b)
	if err != nil {
		return nil, err
	}
	paramID, err := p.parseParameters(b)
	if err != nil {
		return nil, err
	}
	perf, err := parsePerformance(b)
	if err != nil {
		return nil, err
	}
	return &EventProcedureFinish{
		Header: hdr, Status: status,
		AttachmentID: attID, TransactionID: trID,
		Procedure: name, ParamID: paramID,
		Records: perf.Records, perfFields: perf.perfFields, Access: perf.Access,
	}, nil
}

func (p *Parser) parseFunctionStart(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	attID, trID, err := p.parseAttachmentAndTransaction(b)
	if err != nil {
		return nil, err
	}
	name, err := parseRoutineName(b)
	if err != nil {
		return nil, err
	}
	paramID, err := p.parseParameters(b)
	if err != nil {
		return nil, err
	}
	return &EventFunctionStart{
		Header: hdr, Status: status,
		AttachmentID: attID, TransactionID: trID,
		Function: name, ParamID: paramID,
	}, nil
}

func (p *Parser) parseFunctionFinish(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	attID, trID, err := p.parseAttachmentAndTransaction(b)
	if err != nil {
		return nil, err
	}
	name, err := parseRoutineName(b)
	if err != nil {
		return nil, err
	}
	paramID, err := p.parseParameters(b)
	if err != nil {
		return nil, err
	}
	// "returns:" line
	if _, err := b.mustPop(); err != nil {
		return nil, err
	}
	returns, err := parseParamsBlock(b)
	if err != nil {
		return nil, err
	}
	if len(returns) == 0 {
		return nil, &ParseError{Msg: "function return value expected"}
	}
	perf, err := parsePerformance(b)
	if err != nil {
		return nil, err
	}
	return &EventFunctionFinish{
		Header: hdr, Status: status,
		AttachmentID: attID, TransactionID: trID,
		Function: name, ParamID: paramID, Returns: returns[0],
		perfFields: perf.perfFields, Access: perf.Access,
	}, nil
}

func (p *Parser) parseServiceStart(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	svcID, err := p.parseService(b)
	if err != nil {
		return nil, err
	}
	line, err := b.mustPop()
	if err != nil {
		return nil, err
	}
	return &EventServiceStart{
		Header: hdr, Status: status, ServiceID: svcID,
		Action: strings.Trim(line, `"`), Parameters: drain(b),
	}, nil
}

func (p *Parser) parseServiceAttachment(b *block, kind Kind) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	svcID, err := p.parseService(b)
	if err != nil {
		return nil, err
	}
	if kind == KindAttachService {
		return &EventServiceAttach{Header: hdr, Status: status, ServiceID: svcID}, nil
	}
	delete(p.seenServices, svcID)
	return &EventServiceDetach{Header: hdr, Status: status, ServiceID: svcID}, nil
}

func (p *Parser) parseServiceQuery(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	svcID, err := p.parseService(b)
	if err != nil {
		return nil, err
	}
	line, err := b.mustPop()
	if err != nil {
		return nil, err
	}
	line = strings.TrimSpace(line)
	var action *string
	if len(line) >= 2 && line[0] == '"' && line[len(line)-1] == '"' {
		a := strings.Trim(line, `"`)
		action = &a
		if next, ok := b.popFront(); ok {
			line = strings.TrimSpace(next)
		}
	}
	var sent, received []string
	if strings.HasPrefix(line, "Send portion of the query:") {
		// The receive header lands in the sent list too; downstream
		// consumers rely on seeing it there.
		for !strings.HasPrefix(line, "Receive portion of the query:") {
			next, ok := b.popFront()
			if !ok {
				break
			}
			line = strings.TrimSpace(next)
			sent = append(sent, line)
		}
	}
	if strings.HasPrefix(line, "Receive portion of the query:") {
		for {
			next, ok := b.popFront()
			if !ok {
				break
			}
			received = append(received, strings.TrimSpace(next))
		}
	}
	return &EventServiceQuery{
		Header: hdr, Status: status, ServiceID: svcID,
		Action: action, Sent: sent, Received: received,
	}, nil
}

func (p *Parser) parseSetContext(b *block) (Event, error) {
	hdr, _, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	attID, trID, err := p.parseAttachmentAndTransaction(b)
	if err != nil {
		return nil, err
	}
	line, err := b.mustPop()
	if err != nil {
		return nil, err
	}
	context, rest, ok := strings.Cut(line, "]")
	if !ok {
		return nil, parseErrorf(line, "malformed context variable")
	}
	key, value, ok := strings.Cut(rest, "=")
	if !ok {
		return nil, parseErrorf(line, "malformed context variable")
	}
	return &EventSetContext{
		Header:       hdr,
		AttachmentID: attID, TransactionID: trID,
		Context: strings.TrimPrefix(context, "["),
		Key:     strings.TrimSpace(key),
		Value:   strings.Trim(value, ` "`),
	}, nil
}

// parseErrorEvent covers ERROR and WARNING entries, which come in an
// attachment and a service flavor, told apart by the connection description.
// The error location is embedded in the header line after " AT "; a second
// " AT " inside the location text ends it.
func (p *Parser) parseErrorEvent(b *block, warning bool) (Event, error) {
	first, _ := b.front()
	parts := strings.Split(first, " AT ")
	if len(parts) < 2 {
		return nil, parseErrorf(first, "malformed error header")
	}
	place := parts[1]
	hdr, _, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	if next, ok := b.front(); ok && strings.Contains(next, "service_mgr") {
		svcID, err := p.parseService(b)
		if err != nil {
			return nil, err
		}
		if warning {
			return &EventServiceWarning{Header: hdr, ServiceID: svcID, Place: place, Details: drain(b)}, nil
		}
		return &EventServiceError{Header: hdr, ServiceID: svcID, Place: place, Details: drain(b)}, nil
	}
	att, err := p.parseAttachmentInfo(b, true)
	if err != nil {
		return nil, err
	}
	if warning {
		return &EventWarning{Header: hdr, AttachmentID: att.AttachmentID, Place: place, Details: drain(b)}, nil
	}
	return &EventError{Header: hdr, AttachmentID: att.AttachmentID, Place: place, Details: drain(b)}, nil
}

func (p *Parser) parseSweepStart(b *block) (Event, error) {
	hdr, _, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	att, err := p.parseAttachmentInfo(b, true)
	if err != nil {
		return nil, err
	}
	oit, oat, ost, next, err := parseSweepCounters(b)
	if err != nil {
		return nil, err
	}
	return &EventSweepStart{
		Header: hdr, AttachmentID: att.AttachmentID,
		OIT: oit, OAT: oat, OST: ost, Next: next,
	}, nil
}

func (p *Parser) parseSweepProgress(b *block) (Event, error) {
	hdr, _, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	att, err := p.parseAttachmentInfo(b, true)
	if err != nil {
		return nil, err
	}
	perf, err := parsePerformance(b)
	if err != nil {
		return nil, err
	}
	return &EventSweepProgress{
		Header: hdr, AttachmentID: att.AttachmentID,
		perfFields: perf.perfFields, Access: perf.Access,
	}, nil
}

func (p *Parser) parseSweepFinish(b *block) (Event, error) {
	hdr, _, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	att, err := p.parseAttachmentInfo(b, true)
	if err != nil {
		return nil, err
	}
	oit, oat, ost, next, err := parseSweepCounters(b)
	if err != nil {
		return nil, err
	}
	perf, err := parsePerformance(b)
	if err != nil {
		return nil, err
	}
	return &EventSweepFinish{
		Header: hdr, AttachmentID: att.AttachmentID,
		OIT: oit, OAT: oat, OST: ost, Next: next,
		perfFields: perf.perfFields, Access: perf.Access,
	}, nil
}

func (p *Parser) parseSweepFailed(b *block) (Event, error) {
	hdr, _, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	att, err := p.parseAttachmentInfo(b, true)
	if err != nil {
		return nil, err
	}
	return &EventSweepFailed{Header: hdr, AttachmentID: att.AttachmentID}, nil
}

func (p *Parser) parseBLRCompile(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	att, err := p.parseAttachmentInfo(b, true)
	if err != nil {
		return nil, err
	}
	stmtID, err := parseBLRStatementID(b)
	if err != nil {
		return nil, err
	}
	content := parseBLRDYNContent(b)
	prepTime, err := parsePrepareTime(b)
	if err != nil {
		return nil, err
	}
	return &EventBLRCompile{
		Header: hdr, Status: status, AttachmentID: att.AttachmentID,
		StatementID: stmtID, Content: content, PrepareTime: prepTime,
	}, nil
}

func (p *Parser) parseBLRExecute(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	attID, trID, err := p.parseAttachmentAndTransaction(b)
	if err != nil {
		return nil, err
	}
	stmtID, err := parseBLRStatementID(b)
	if err != nil {
		return nil, err
	}
	content := parseBLRDYNContent(b)
	perf, err := parsePerformance(b)
	if err != nil {
		return nil, err
	}
	return &EventBLRExecute{
		Header: hdr, Status: status,
		AttachmentID: attID, TransactionID: trID,
		StatementID: stmtID, Content: content,
		perfFields: perf.perfFields, Access: perf.Access,
	}, nil
}

func (p *Parser) parseDYNExecute(b *block) (Event, error) {
	hdr, status, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	attID, trID, err := p.parseAttachmentAndTransaction(b)
	if err != nil {
		return nil, err
	}
	content := parseBLRDYNContent(b)
	line, err := b.mustPop()
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, parseErrorf(line, "malformed run time")
	}
	runTime, err := parseInt(fields[0], "run time")
	if err != nil {
		return nil, err
	}
	return &EventDYNExecute{
		Header: hdr, Status: status,
		AttachmentID: attID, TransactionID: trID,
		Content: content, RunTime: &runTime,
	}, nil
}

// parseUnknown captures an entry of an unrecognized kind verbatim, keeping
// everything after the header line's timestamp and thread id.
func (p *Parser) parseUnknown(b *block) (Event, error) {
	first, _ := b.front()
	items := strings.Fields(first)
	hdr, _, err := p.parseHeader(b)
	if err != nil {
		return nil, err
	}
	b.pushFront(strings.Join(items[2:], " "))
	return &EventUnknown{Header: hdr, Data: strings.Join(drain(b), "\n")}, nil
}

func drain(b *block) []string {
	var out []string
	for {
		line, ok := b.popFront()
		if !ok {
			return out
		}
		out = append(out, line)
	}
}
