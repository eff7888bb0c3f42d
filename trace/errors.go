package trace

import "fmt"

// ParseError reports a structural violation in the trace text: a malformed
// header, a missing separator, or a section that does not match its
// documented layout. Line carries the offending line when one is known.
type ParseError struct {
	Msg  string
	Line string
}

func (e *ParseError) Error() string {
	if e.Line == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %q", e.Msg, e.Line)
}

func parseErrorf(line string, format string, args ...any) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Line: line}
}
