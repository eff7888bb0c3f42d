package trace

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func parseInt(s, what string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, parseErrorf(s, "invalid %s", what)
	}
	return n, nil
}

// safeInt decodes one access table cell. The engine leaves cells of unused
// counters empty, which reads as zero.
func safeInt(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

// parseAttachmentInfo consumes the attachment description line, plus the
// optional remote process line that follows it. When announce is set and the
// attachment id has not been seen yet, an AttachmentInfo record is queued.
func (p *Parser) parseAttachmentInfo(b *block, announce bool) (attachmentFields, error) {
	line, err := b.mustPop()
	if err != nil {
		return attachmentFields{}, err
	}
	database, spec, _ := strings.Cut(line, " (")
	fields := strings.Split(strings.Trim(spec, "()"), ",")
	if len(fields) != 4 {
		return attachmentFields{}, parseErrorf(line, "malformed attachment description")
	}
	_, idStr, _ := strings.Cut(fields[0], "_")
	id, err := parseInt(idStr, "attachment id")
	if err != nil {
		return attachmentFields{}, err
	}
	af := attachmentFields{
		AttachmentID: id,
		Database:     database,
		Charset:      strings.TrimSpace(fields[2]),
	}
	protoAddr := strings.TrimSpace(fields[3])
	if protoAddr == "<internal>" {
		af.Protocol, af.Address = protoAddr, protoAddr
	} else {
		af.Protocol, af.Address, _ = strings.Cut(protoAddr, ":")
	}
	userRole := strings.TrimSpace(fields[1])
	if user, role, ok := strings.Cut(userRole, ":"); ok {
		af.User, af.Role = user, role
	} else {
		af.User, af.Role = userRole, "NONE"
	}
	// The line after the attachment description is a remote process spec
	// only for network attachments, and even then it may instead belong to
	// the next section (transaction, counters, separator, error text).
	if protoAddr != "<internal>" {
		if next, ok := b.front(); ok &&
			!strings.HasPrefix(next, "(TRA") &&
			!strings.Contains(next, " ms,") &&
			!strings.Contains(next, "Transaction counters:") &&
			!strings.HasPrefix(next, "---") {
			if i := strings.LastIndex(next, ":"); i >= 0 && isDigits(next[i+1:]) {
				proc := next[:i]
				pid, _ := strconv.Atoi(next[i+1:])
				af.RemoteProcess = &proc
				af.RemotePID = &pid
				b.popFront()
			}
		}
	}
	if announce {
		if _, seen := p.seenAttachments[id]; !seen {
			p.infos = append(p.infos, AttachmentInfo(af))
		}
	}
	p.seenAttachments[id] = struct{}{}
	return af, nil
}

type transactionFields struct {
	TransactionID int
	InitialID     *int
	Options       []string
}

// parseTransactionInfo consumes the transaction parameters line. The
// three-field form carries the initial transaction id of a retaining chain.
func (p *Parser) parseTransactionInfo(b *block, attachmentID int, announce bool) (transactionFields, error) {
	line, err := b.mustPop()
	if err != nil {
		return transactionFields{}, err
	}
	items := strings.Split(strings.Trim(line, "\t ()"), ",")
	var tf transactionFields
	var idField, optField string
	switch len(items) {
	case 2:
		idField, optField = items[0], items[1]
	case 3:
		idField, optField = items[0], items[2]
		initial, err := parseInt(strings.TrimPrefix(strings.TrimSpace(items[1]), "INIT_"), "initial transaction id")
		if err != nil {
			return transactionFields{}, err
		}
		tf.InitialID = &initial
	default:
		return transactionFields{}, parseErrorf(line, "malformed transaction parameters")
	}
	_, idStr, _ := strings.Cut(idField, "_")
	tf.TransactionID, err = parseInt(idStr, "transaction id")
	if err != nil {
		return transactionFields{}, err
	}
	for _, opt := range strings.Split(optField, "|") {
		tf.Options = append(tf.Options, strings.TrimSpace(opt))
	}
	if announce {
		if _, seen := p.seenTransactions[tf.TransactionID]; !seen {
			p.infos = append(p.infos, TransactionInfo{
				AttachmentID:  attachmentID,
				TransactionID: tf.TransactionID,
				InitialID:     tf.InitialID,
				Options:       tf.Options,
			})
		}
	}
	p.seenTransactions[tf.TransactionID] = struct{}{}
	return tf, nil
}

// parsePerfCounters decodes a counters line such as
// "0 ms, 3 read(s), 9 fetch(es), 2 mark(s)". Counters not present stay nil.
func parsePerfCounters(line string) (perfFields, error) {
	var pf perfFields
	for _, item := range strings.Split(line, ",") {
		fields := strings.Fields(item)
		if len(fields) != 2 {
			return pf, parseErrorf(line, "malformed performance counters")
		}
		n, err := parseInt(fields[0], "performance counter")
		if err != nil {
			return pf, err
		}
		switch unit := fields[1]; {
		case strings.Contains(unit, "ms"):
			pf.RunTime = &n
		case strings.Contains(unit, "read"):
			pf.Reads = &n
		case strings.Contains(unit, "write"):
			pf.Writes = &n
		case strings.Contains(unit, "fetch"):
			pf.Fetches = &n
		case strings.Contains(unit, "mark"):
			pf.Marks = &n
		default:
			return pf, parseErrorf(line, "unhandled performance counter %q", unit)
		}
	}
	return pf, nil
}

// parseTransactionPerf consumes the optional counters line of transaction
// end events.
func parseTransactionPerf(b *block) (perfFields, error) {
	line, ok := b.popFront()
	if !ok {
		return perfFields{}, nil
	}
	return parsePerfCounters(line)
}

// parseStatementID consumes the optional "Statement N:" line and the dash
// separator. Failed events carry no separator after the statement line.
func parseStatementID(b *block, status Status) (id int, err error) {
	line, err := b.mustPop()
	if err != nil {
		return 0, err
	}
	if strings.HasPrefix(line, "Statement") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, parseErrorf(line, "malformed statement id")
		}
		id, err = parseInt(strings.TrimSuffix(fields[1], ":"), "statement id")
		if err != nil {
			return 0, err
		}
		if status == StatusFailed {
			return id, nil
		}
		line, err = b.mustPop()
		if err != nil {
			return 0, err
		}
	}
	if line != blockSeparator {
		return 0, parseErrorf(line, "separator line of 79 dashes expected")
	}
	return id, nil
}

// parseSQL consumes the SQL text, which runs until the plan separator, the
// performance section or the parameters section. The terminator line is
// pushed back.
func parseSQL(b *block) *string {
	if b.empty() {
		return nil
	}
	var sql []string
	line, _ := b.popFront()
	for {
		if isPlanSeparator(line) || isPerfStart(line) || isParamStart(line) {
			b.pushFront(line)
			break
		}
		sql = append(sql, line)
		next, ok := b.popFront()
		if !ok {
			break
		}
		line = next
	}
	text := strings.Join(sql, "\n")
	return &text
}

// parsePlan consumes the caret separator and the plan text that follows it.
// No plan section at all is fine; anything else in the separator position
// is an error.
func parsePlan(b *block) (*string, error) {
	if b.empty() {
		return nil, nil
	}
	line, _ := b.popFront()
	if isPerfStart(line) || isParamStart(line) {
		b.pushFront(line)
		return nil, nil
	}
	if !isPlanSeparator(line) {
		return nil, parseErrorf(line, "separator line of 79 carets expected")
	}
	var plan []string
	for {
		next, ok := b.popFront()
		if !ok {
			break
		}
		if isPerfStart(next) || isParamStart(next) {
			b.pushFront(next)
			break
		}
		plan = append(plan, next)
	}
	text := strings.Join(plan, "\n")
	return &text, nil
}

// parsePrepareTime takes the trailing "N ms" line from the back of the
// block. It sits after the SQL text, so consuming it from the back keeps
// the front parsers oblivious of it.
func parsePrepareTime(b *block) (*int, error) {
	last, ok := b.back()
	if !ok || !strings.HasSuffix(last, " ms") {
		return nil, nil
	}
	b.popBack()
	n, err := parseInt(strings.Fields(last)[0], "prepare time")
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// parseBLRStatementID consumes the optional "Statement N:" line of BLR
// events.
func parseBLRStatementID(b *block) (*int, error) {
	line, ok := b.front()
	if !ok {
		return nil, nil
	}
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "Statement ") || !strings.HasSuffix(line, ":") {
		return nil, nil
	}
	b.popFront()
	fields := strings.Fields(line)
	n, err := parseInt(strings.TrimSuffix(fields[1], ":"), "statement id")
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// parseBLRDYNContent consumes the dash separator and the BLR/DYN source
// text, terminated by the counters line. Sessions configured without BLR
// printing omit the whole section.
func parseBLRDYNContent(b *block) *string {
	if line, ok := b.front(); !ok || line != blockSeparator {
		return nil
	}
	b.popFront()
	var content []string
	line, ok := b.popFront()
	for ok && !isBLRPerfStart(line) {
		content = append(content, line)
		line, ok = b.popFront()
	}
	if ok {
		b.pushFront(line)
	}
	text := strings.Join(content, "\n")
	return &text
}

// parseParamValue decodes one "type, value" parameter spec into a typed Go
// value: int64 for integer types, time.Time for date/time types,
// decimal.Decimal for approximate numerics, nil for <NULL>, string
// otherwise.
func parseParamValue(def string) (Param, error) {
	typ, rest, ok := strings.Cut(def, ",")
	if !ok {
		return Param{}, parseErrorf(def, "malformed parameter spec")
	}
	value := strings.Trim(rest, ` "`)
	if value == "<NULL>" {
		return Param{Type: typ}, nil
	}
	switch typ {
	case "smallint", "integer", "bigint":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Param{}, parseErrorf(def, "invalid %s parameter", typ)
		}
		return Param{Type: typ, Value: n}, nil
	case "timestamp":
		t, err := time.Parse(headerTimeLayout, value)
		if err != nil {
			return Param{}, parseErrorf(def, "invalid timestamp parameter")
		}
		return Param{Type: typ, Value: t}, nil
	case "date":
		t, err := time.Parse(paramDateLayout, value)
		if err != nil {
			return Param{}, parseErrorf(def, "invalid date parameter")
		}
		return Param{Type: typ, Value: t}, nil
	case "time":
		t, err := time.Parse(paramTimeLayout, value)
		if err != nil {
			return Param{}, parseErrorf(def, "invalid time parameter")
		}
		return Param{Type: typ, Value: t}, nil
	case "float", "double precision":
		d, err := decimal.NewFromString(value)
		if err != nil {
			return Param{}, parseErrorf(def, "invalid %s parameter", typ)
		}
		return Param{Type: typ, Value: d}, nil
	}
	return Param{Type: typ, Value: value}, nil
}

// parseParamsBlock consumes consecutive "paramN = type, value" lines.
func parseParamsBlock(b *block) ([]Param, error) {
	var params []Param
	for {
		line, ok := b.front()
		if !ok || !strings.HasPrefix(line, "param") {
			return params, nil
		}
		b.popFront()
		_, def, found := strings.Cut(line, " = ")
		if !found {
			return nil, parseErrorf(line, "malformed parameter line")
		}
		param, err := parseParamValue(def)
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}
}

// parseParameters consumes the parameters section and resolves it to a
// param set id. Identical value tuples share one id; the first occurrence
// queues a ParamSet record. An absent section yields a nil id.
func (p *Parser) parseParameters(b *block) (*int, error) {
	params, err := parseParamsBlock(b)
	if err != nil {
		return nil, err
	}
	for {
		line, ok := b.front()
		if !ok || !strings.HasSuffix(line, "more arguments skipped...") {
			break
		}
		b.popFront()
	}
	if len(params) == 0 {
		return nil, nil
	}
	key := paramKey(params)
	if id, ok := p.paramIDs[key]; ok {
		return &id, nil
	}
	id := p.nextParamID
	p.nextParamID++
	p.paramIDs[key] = id
	p.infos = append(p.infos, ParamSet{ParamID: id, Params: params})
	return &id, nil
}

// paramKey builds the identity key of a parameter tuple.
func paramKey(params []Param) string {
	var sb strings.Builder
	for _, param := range params {
		sb.WriteString(param.Type)
		sb.WriteByte(':')
		switch v := param.Value.(type) {
		case nil:
			sb.WriteString("<NULL>")
		case int64:
			sb.WriteString(strconv.FormatInt(v, 10))
		case time.Time:
			sb.WriteString(v.Format(time.RFC3339Nano))
		case decimal.Decimal:
			sb.WriteString(v.String())
		case string:
			sb.WriteString(v)
		}
		sb.WriteByte(0)
	}
	return sb.String()
}

type performance struct {
	perfFields
	Records *int
	Access  []AccessStats
}

// parsePerformance consumes the optional performance section: the
// "N records fetched" line, the counters line, and the per-table access
// statistics.
func parsePerformance(b *block) (performance, error) {
	var perf performance
	if b.empty() {
		return perf, nil
	}
	if line, _ := b.front(); strings.Contains(line, "records fetched") {
		b.popFront()
		n, err := parseInt(strings.Fields(line)[0], "records fetched")
		if err != nil {
			return perf, err
		}
		perf.Records = &n
	}
	line, err := b.mustPop()
	if err != nil {
		return perf, err
	}
	perf.perfFields, err = parsePerfCounters(line)
	if err != nil {
		return perf, err
	}
	if b.empty() {
		return perf, nil
	}
	header, _ := b.popFront()
	if header != accessHeader {
		return perf, parseErrorf(header, "performance table header expected")
	}
	sep, err := b.mustPop()
	if err != nil {
		return perf, err
	}
	if sep != accessSeparator {
		return perf, parseErrorf(sep, "performance table header separator expected")
	}
	perf.Access = []AccessStats{}
	for !b.empty() {
		row, _ := b.popFront()
		perf.Access = append(perf.Access, parseAccessRow(row))
	}
	return perf, nil
}

// parseAccessRow decodes one fixed-width access statistics row: the table
// name in the first 32 columns, then eight 10-column counter cells.
func parseAccessRow(row string) AccessStats {
	cell := func(from, to int) string {
		if from >= len(row) {
			return ""
		}
		if to > len(row) {
			to = len(row)
		}
		return strings.TrimSpace(row[from:to])
	}
	return AccessStats{
		Table:   cell(0, 32),
		Natural: safeInt(cell(32, 41)),
		Index:   safeInt(cell(41, 51)),
		Update:  safeInt(cell(51, 61)),
		Insert:  safeInt(cell(61, 71)),
		Delete:  safeInt(cell(71, 81)),
		Backout: safeInt(cell(81, 91)),
		Purge:   safeInt(cell(91, 101)),
		Expunge: safeInt(cell(101, 111)),
	}
}

type sqlKey struct {
	sql, plan       string
	hasSQL, hasPlan bool
}

func makeSQLKey(sql, plan *string) sqlKey {
	var key sqlKey
	if sql != nil {
		key.sql, key.hasSQL = *sql, true
	}
	if plan != nil {
		key.plan, key.hasPlan = *plan, true
	}
	return key
}

// resolveSQLID maps a (SQL text, plan) pair to its id, assigning a fresh id
// and queueing a SQLInfo record on first sight.
func (p *Parser) resolveSQLID(sql, plan *string) int {
	key := makeSQLKey(sql, plan)
	if id, ok := p.sqlIDs[key]; ok {
		return id
	}
	id := p.nextSQLID
	p.nextSQLID++
	p.sqlIDs[key] = id
	p.infos = append(p.infos, SQLInfo{SQLID: id, SQL: sql, Plan: plan})
	return id
}

// forgetSQL drops a (SQL text, plan) pair from the dedup cache, so a later
// statement with the same text gets a fresh id.
func (p *Parser) forgetSQL(sql, plan *string) {
	delete(p.sqlIDs, makeSQLKey(sql, plan))
}

// parseTrigger consumes the "NAME FOR TABLE (EVENT)" line.
func parseTrigger(b *block) (trigger string, table *string, event string, err error) {
	line, err := b.mustPop()
	if err != nil {
		return "", nil, "", err
	}
	name, spec, ok := strings.Cut(line, "(")
	if !ok {
		return "", nil, "", parseErrorf(line, "malformed trigger description")
	}
	if before, after, found := strings.Cut(name, " FOR "); found {
		trigger = before
		t := strings.TrimSpace(after)
		table = &t
	} else {
		trigger = strings.TrimSpace(name)
	}
	return trigger, table, strings.Trim(spec, "()"), nil
}

// parseService consumes the service description line, queueing a
// ServiceInfo record the first time a handle is seen.
func (p *Parser) parseService(b *block) (int64, error) {
	line, err := b.mustPop()
	if err != nil {
		return 0, err
	}
	_, spec, _ := strings.Cut(line, " (")
	items := strings.Split(strings.Trim(spec, "()"), ",")
	var svcField, user, protoAddr, remoteSpec string
	switch len(items) {
	case 4:
		svcField, user, protoAddr, remoteSpec = items[0], items[1], items[2], items[3]
	case 3:
		svcField, user, protoAddr = items[0], items[1], items[2]
	default:
		return 0, parseErrorf(line, "malformed service description")
	}
	_, idStr, _ := strings.Cut(svcField, " ")
	id, err := strconv.ParseInt(strings.TrimPrefix(idStr, "0x"), 16, 64)
	if err != nil {
		return 0, parseErrorf(line, "invalid service id")
	}
	if _, seen := p.seenServices[id]; !seen {
		info := ServiceInfo{ServiceID: id, User: strings.TrimSpace(user)}
		pa := strings.TrimSpace(protoAddr)
		if pa == "internal" {
			info.Protocol, info.Address = pa, pa
		} else {
			info.Protocol, info.Address, _ = strings.Cut(pa, ":")
		}
		if remoteSpec != "" {
			rs := strings.TrimSpace(remoteSpec)
			if i := strings.LastIndex(rs, ":"); i >= 0 && isDigits(rs[i+1:]) {
				proc := rs[:i]
				pid, _ := strconv.Atoi(rs[i+1:])
				info.RemoteProcess = &proc
				info.RemotePID = &pid
			}
		}
		p.infos = append(p.infos, info)
		p.seenServices[id] = struct{}{}
	}
	return id, nil
}

// parseSweepCounters consumes the "Transaction counters:" section of sweep
// events. A trailing counters line belongs to the performance section and
// is pushed back.
func parseSweepCounters(b *block) (oit, oat, ost, next int, err error) {
	line, err := b.mustPop()
	if err != nil {
		return
	}
	if !strings.Contains(line, "Transaction counters:") {
		err = parseErrorf(line, "transaction counters expected")
		return
	}
	for !b.empty() {
		line, _ = b.popFront()
		last := line[strings.LastIndex(line, " ")+1:]
		switch {
		case strings.Contains(line, "Oldest interesting"):
			oit, err = parseInt(last, "oldest interesting transaction")
		case strings.Contains(line, "Oldest active"):
			oat, err = parseInt(last, "oldest active transaction")
		case strings.Contains(line, "Oldest snapshot"):
			ost, err = parseInt(last, "oldest snapshot transaction")
		case strings.Contains(line, "Next transaction"):
			next, err = parseInt(last, "next transaction")
		case strings.Contains(line, "ms"):
			b.pushFront(line)
			return
		}
		if err != nil {
			return
		}
	}
	return
}
