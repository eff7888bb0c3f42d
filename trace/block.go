package trace

// block is the line buffer for one trace entry. Section parsers consume it
// front to back; a single line of lookahead can be pushed back, and the
// prepare-time line is taken from the back because it trails the SQL text.
type block struct {
	lines []string
	head  int
}

func newBlock(lines []string) *block {
	return &block{lines: lines}
}

func (b *block) len() int {
	return len(b.lines) - b.head
}

func (b *block) empty() bool {
	return b.head >= len(b.lines)
}

// front returns the next line without consuming it.
func (b *block) front() (string, bool) {
	if b.empty() {
		return "", false
	}
	return b.lines[b.head], true
}

func (b *block) popFront() (string, bool) {
	if b.empty() {
		return "", false
	}
	line := b.lines[b.head]
	b.head++
	return line, true
}

// mustPop consumes the next line or fails when the entry ends early.
func (b *block) mustPop() (string, error) {
	line, ok := b.popFront()
	if !ok {
		return "", &ParseError{Msg: "unexpected end of trace entry"}
	}
	return line, nil
}

// pushFront puts back one line of lookahead.
func (b *block) pushFront(line string) {
	if b.head > 0 {
		b.head--
		b.lines[b.head] = line
		return
	}
	b.lines = append([]string{line}, b.lines...)
}

func (b *block) back() (string, bool) {
	if b.empty() {
		return "", false
	}
	return b.lines[len(b.lines)-1], true
}

func (b *block) popBack() (string, bool) {
	if b.empty() {
		return "", false
	}
	line := b.lines[len(b.lines)-1]
	b.lines = b.lines[:len(b.lines)-1]
	return line, true
}
