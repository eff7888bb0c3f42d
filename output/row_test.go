package output

import (
	"testing"
	"time"

	"github.com/fbtools/fbtrace/trace"
)

const attachLog = `2014-05-23T11:00:28.5840 (3720:0000000000EFD9E8) ATTACH_DATABASE
	/home/employee.fdb (ATT_8, SYSDBA:NONE, ISO88591, TCPv4:192.168.1.5)
	/opt/firebird/bin/isql:8723
`

const statementLog = `2014-05-23T11:00:28.5840 (3720:0000000000EFD9E8) ATTACH_DATABASE
	/home/employee.fdb (ATT_8, SYSDBA:NONE, ISO88591, TCPv4:192.168.1.5)
	/opt/firebird/bin/isql:8723

2014-05-23T11:00:28.6160 (3720:0000000000EFD9E8) START_TRANSACTION
	/home/employee.fdb (ATT_8, SYSDBA:NONE, ISO88591, TCPv4:192.168.1.5)
	/opt/firebird/bin/isql:8723
		(TRA_1570, READ_COMMITTED | REC_VERSION | WAIT | READ_WRITE)

2014-05-23T11:00:45.5420 (3720:0000000000EFD9E8) EXECUTE_STATEMENT_FINISH
	/home/employee.fdb (ATT_8, SYSDBA:NONE, ISO88591, TCPv4:192.168.1.5)
	/opt/firebird/bin/isql:8723
		(TRA_1570, READ_COMMITTED | REC_VERSION | WAIT | READ_WRITE)

Statement 181:
-------------------------------------------------------------------------------
SELECT GEN_ID(GEN_NUM, 1) NUMS FROM RDB$DATABASE
^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^^
PLAN (RDB$DATABASE NATURAL)
1 records fetched
      0 ms, 2 read(s), 14 fetch(es), 1 mark(s)

Table                             Natural     Index    Update    Insert    Delete   Backout     Purge   Expunge
***************************************************************************************************************
RDB$DATABASE                            1
RDB$CHARACTER_SETS                                1
RDB$COLLATIONS                                    1
`

func parseLog(t *testing.T, text string) []trace.Record {
	t.Helper()
	records, err := trace.NewParser().ParseString(text)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	return records
}

func lastEvent(t *testing.T, records []trace.Record) trace.Event {
	t.Helper()
	for i := len(records) - 1; i >= 0; i-- {
		if ev, ok := records[i].(trace.Event); ok {
			return ev
		}
	}
	t.Fatal("no event in records")
	return nil
}

func TestNewEventRowAttach(t *testing.T) {
	row := NewEventRow(lastEvent(t, parseLog(t, attachLog)))

	if row.EventID != 1 || row.Kind != "ATTACH_DATABASE" || row.Status != "OK" {
		t.Errorf("unexpected header fields %+v", row)
	}
	want := time.Date(2014, 5, 23, 11, 0, 28, 584000000, time.UTC)
	if !row.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", row.Timestamp, want)
	}
	if row.AttachmentID == nil || *row.AttachmentID != 8 {
		t.Errorf("attachment id = %v, want 8", row.AttachmentID)
	}
	if row.Database != "/home/employee.fdb" || row.User != "SYSDBA" || row.Role != "NONE" {
		t.Errorf("unexpected descriptor %+v", row)
	}
	if row.Charset != "ISO88591" || row.Protocol != "TCPv4" || row.Address != "192.168.1.5" {
		t.Errorf("unexpected connection fields %+v", row)
	}
	if row.RemoteProcess == nil || *row.RemoteProcess != "/opt/firebird/bin/isql" {
		t.Errorf("remote process = %v", row.RemoteProcess)
	}
	if row.RemotePID == nil || *row.RemotePID != 8723 {
		t.Errorf("remote pid = %v", row.RemotePID)
	}
}

func TestNewEventRowStatementFinish(t *testing.T) {
	row := NewEventRow(lastEvent(t, parseLog(t, statementLog)))

	if row.Kind != "EXECUTE_STATEMENT_FINISH" {
		t.Fatalf("kind = %s", row.Kind)
	}
	if row.StatementID == nil || *row.StatementID != 181 {
		t.Errorf("statement id = %v, want 181", row.StatementID)
	}
	if row.SQLID == nil || *row.SQLID != 1 {
		t.Errorf("sql id = %v, want 1", row.SQLID)
	}
	if row.Records == nil || *row.Records != 1 {
		t.Errorf("records = %v, want 1", row.Records)
	}
	if row.RunTime == nil || *row.RunTime != 0 {
		t.Errorf("run time = %v, want 0", row.RunTime)
	}
	if row.Reads == nil || *row.Reads != 2 {
		t.Errorf("reads = %v, want 2", row.Reads)
	}
	if row.Writes != nil {
		t.Errorf("writes = %v, want nil", row.Writes)
	}
	if row.Fetches == nil || *row.Fetches != 14 || row.Marks == nil || *row.Marks != 1 {
		t.Errorf("fetches/marks = %v/%v", row.Fetches, row.Marks)
	}
	if len(row.Access) != 3 || row.Access[0].Table != "RDB$DATABASE" || row.Access[0].Natural != 1 {
		t.Errorf("unexpected access stats %+v", row.Access)
	}
}

func TestNewEventRowUnknown(t *testing.T) {
	ev := &trace.EventUnknown{
		Header: trace.Header{EventID: 7, Timestamp: time.Date(2014, 5, 23, 11, 0, 28, 0, time.UTC)},
		Data:   "SOME_EVENT\npayload line",
	}
	row := NewEventRow(ev)
	if row.Kind != "UNKNOWN" || row.Data != ev.Data {
		t.Errorf("unexpected row %+v", row)
	}
}
