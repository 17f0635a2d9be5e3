package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single line. Metadata payloads carry whole messages.
const maxLineSize = 1 << 20

// Reader splits a server-sent event stream into raw chunks, one per event
// group. Groups end at a blank line; a group cut short by end of stream is
// still returned.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader creates a [Reader] reading from r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: s}
}

// Next returns the next raw chunk. It returns io.EOF when the stream ends
// cleanly and the underlying read error otherwise.
func (r *Reader) Next() (string, error) {
	var sb strings.Builder

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if strings.TrimSpace(line) == "" {
			// Blank line ends the group.
			if sb.Len() > 0 {
				return sb.String(), nil
			}
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}

	if err := r.scanner.Err(); err != nil {
		return "", fmt.Errorf("sse: %w", err)
	}
	if sb.Len() > 0 {
		return sb.String(), nil
	}
	return "", io.EOF
}
