package sink

import (
	"fmt"
	"strings"
	"testing"
)

func TestZeroOr(t *testing.T) {
	if got := zeroOr(nil); got != 0 {
		t.Errorf("zeroOr(nil) = %d, want 0", got)
	}
	v := 42
	if got := zeroOr(&v); got != 42 {
		t.Errorf("zeroOr(&42) = %d, want 42", got)
	}
}

func TestTableDDL(t *testing.T) {
	ddl := fmt.Sprintf(tableDDL, "fbtrace_events")
	if !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS fbtrace_events") {
		t.Errorf("table name not substituted:\n%s", ddl)
	}
	if !strings.Contains(ddl, "ORDER BY (timestamp, event_id)") {
		t.Errorf("missing ordering key:\n%s", ddl)
	}
}
