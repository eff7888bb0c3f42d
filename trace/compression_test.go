package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

const sampleLog = `2014-05-23T11:00:28.5840 (3720:0000000000EFD9E8) TRACE_INIT
	SESSION_1

2014-05-23T11:00:28.5900 (3720:0000000000EFD9E8) ATTACH_DATABASE
	/home/employee.fdb (ATT_8, SYSDBA:NONE, ISO88591, TCPv4:192.168.1.5)
	/opt/firebird/bin/isql:8723

2014-05-23T11:01:24.8080 (3720:0000000000EFD9E8) TRACE_FINI
	SESSION_1
`

func parseFileRecords(t *testing.T, path string) []Record {
	t.Helper()
	out := make(chan Record, 16)
	if err := NewParser().ParseFile(path, out); err != nil {
		t.Fatalf("ParseFile(%s): %v", path, err)
	}
	close(out)
	var got []Record
	for rec := range out {
		got = append(got, rec)
	}
	return got
}

func checkSampleLog(t *testing.T, got []Record) {
	t.Helper()
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	if _, ok := got[0].(*EventTraceInit); !ok {
		t.Errorf("record 0 is %T, want *EventTraceInit", got[0])
	}
	att, ok := got[1].(*EventAttach)
	if !ok {
		t.Fatalf("record 1 is %T, want *EventAttach", got[1])
	}
	if att.AttachmentID != 8 || att.Database != "/home/employee.fdb" {
		t.Errorf("unexpected attach event %+v", att)
	}
	if _, ok := got[2].(*EventTraceFinish); !ok {
		t.Errorf("record 2 is %T, want *EventTraceFinish", got[2])
	}
}

func TestParseFilePlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fbtrace.log")
	if err := os.WriteFile(path, []byte(sampleLog), 0o644); err != nil {
		t.Fatal(err)
	}
	checkSampleLog(t, parseFileRecords(t, path))
}

func TestParseFileGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fbtrace.log.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := pgzip.NewWriter(f)
	if _, err := zw.Write([]byte(sampleLog)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	checkSampleLog(t, parseFileRecords(t, path))
}

func TestParseFileZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fbtrace.log.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := zw.Write([]byte(sampleLog)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	checkSampleLog(t, parseFileRecords(t, path))
}

func TestParseFileMissing(t *testing.T) {
	if err := NewParser().ParseFile(filepath.Join(t.TempDir(), "nope.log"), nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOpenCorruptGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.gz")
	if err := os.WriteFile(path, []byte("not gzip data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("expected error for corrupt gzip file")
	}
}
