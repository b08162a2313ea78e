package irc

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Splitter accumulates space separated items behind a fixed reply prefix
// and starts a new line whenever the next item would push the current one
// past the wire limit. It backs NAMES style multi-part replies.
type Splitter struct {
	prefix string
	buffer *bytes.Buffer
	lines  []string
}

// NewSplitter takes the unterminated reply prefix, e.g.
// ":srv 353 nick = #chan :".
func NewSplitter(prefix string) *Splitter {
	return &Splitter{prefix: prefix, buffer: &bytes.Buffer{}}
}

func (s *Splitter) Add(item string) {
	sep := 0
	if s.buffer.Len() > 0 {
		sep = 1
	}
	if s.buffer.Len() > 0 && len(s.prefix)+s.buffer.Len()+sep+len(item) > maxContent {
		s.flush()
		sep = 0
	}
	if sep == 1 {
		s.buffer.WriteByte(' ')
	}
	s.buffer.WriteString(item)
}

// Lines flushes and returns every terminated line built so far.
func (s *Splitter) Lines() []string {
	s.flush()
	lines := s.lines
	s.lines = nil
	return lines
}

func (s *Splitter) flush() {
	if s.buffer.Len() == 0 {
		return
	}
	s.lines = append(s.lines, terminate(s.prefix+s.buffer.String()))
	s.buffer.Reset()
}

// Wrap breaks free text into pieces of at most max bytes, preferring the
// last space inside the limit and hard breaking when there is none.
func Wrap(text string, max int) []string {
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	var out []string
	buf := bytes.NewBufferString(text)
	for buf.Len() > max {
		data := buf.Bytes()
		if idx := bytes.LastIndexByte(data[:max], ' '); idx > 0 {
			out = append(out, string(data[:idx]))
			buf.Next(idx + 1)
			continue
		}
		n := max
		for n > 0 && !utf8.RuneStart(data[n]) {
			n--
		}
		if n == 0 {
			n = max
		}
		out = append(out, string(data[:n]))
		buf.Next(n)
	}
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		out = append(out, buf.String())
	}
	return out
}
