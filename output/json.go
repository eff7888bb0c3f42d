package output

import (
	"encoding/json"
	"io"

	"github.com/fbtools/fbtrace/trace"
)

// recordJSON is the envelope written for every record: one JSON object per
// line, tagged with the record family so consumers can demultiplex the
// stream without inspecting the payload.
type recordJSON struct {
	Record string `json:"record"`
	Data   any    `json:"data"`
}

// JSONRenderer writes records as JSON lines.
type JSONRenderer struct {
	enc *json.Encoder
}

func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

// Render writes one record as a single JSON line. Events are flattened to
// EventRow; infos are written with their native shape.
func (r *JSONRenderer) Render(rec trace.Record) error {
	var env recordJSON
	switch v := rec.(type) {
	case trace.AttachmentInfo:
		env = recordJSON{Record: "attachment", Data: v}
	case trace.TransactionInfo:
		env = recordJSON{Record: "transaction", Data: v}
	case trace.ServiceInfo:
		env = recordJSON{Record: "service", Data: v}
	case trace.SQLInfo:
		env = recordJSON{Record: "sql", Data: v}
	case trace.ParamSet:
		env = recordJSON{Record: "params", Data: v}
	case trace.Event:
		env = recordJSON{Record: "event", Data: NewEventRow(v)}
	default:
		env = recordJSON{Record: "unknown", Data: v}
	}
	return r.enc.Encode(env)
}
