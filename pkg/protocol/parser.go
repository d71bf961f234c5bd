package protocol

import "strings"

// DefaultMaxLine is the default limit of a single inbound line.
// It must hold a base64 encoded picture.
const DefaultMaxLine = 64 * 1024

// LineParser assembles lines from bytes received.
type LineParser struct {
	MaxLen int

	buf      []byte
	overflow bool
}

// ParseResult indicates the result after one parsing step.
type ParseResult struct {
	// Line is valid only if Complete is true.
	Line     string
	Complete bool
	Err      error
}

// Reset discards partially received data.
func (p *LineParser) Reset() {
	p.buf, p.overflow = p.buf[:0], false
}

// Parse consumes one byte.
func (p *LineParser) Parse(b byte) (pr ParseResult) {
	if b != '\n' {
		if p.overflow {
			return
		}
		if len(p.buf) >= p.maxLen() {
			p.overflow = true
			return
		}
		p.buf = append(p.buf, b)
		return
	}
	if p.overflow {
		pr.Err = ErrLineTooLong
		p.Reset()
		return
	}
	line := strings.TrimSpace(string(p.buf))
	p.Reset()
	if line != "" {
		pr.Line, pr.Complete = line, true
	}
	return
}

func (p *LineParser) maxLen() int {
	if p.MaxLen > 0 {
		return p.MaxLen
	}
	return DefaultMaxLine
}
