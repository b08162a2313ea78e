// Package irc holds the wire codec: parsing client lines into Messages and
// rendering replies back into CRLF terminated lines.
package irc

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	// MaxParams is the number of positional parameters kept per message.
	MaxParams = 15

	maxLineLength = 512
	maxContent    = maxLineLength - 2
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrNoCommand    = errors.New("message has no command")
)

// Message is one parsed protocol line.
type Message struct {
	Origin      string
	Command     string
	Params      []string
	Trailing    string
	HasTrailing bool
}

// Parse splits line into origin, command, positional parameters and the
// trailing body. The first token starting with ':' after the command ends
// positional parsing; the rest of the line, spaces included, is the body.
// Parameters past MaxParams are dropped.
func Parse(line string) (*Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyMessage
	}

	m := &Message{}
	rest := line
	if strings.HasPrefix(rest, ":") {
		m.Origin, rest, _ = strings.Cut(rest[1:], " ")
	}

	for rest != "" {
		if rest[0] == ' ' {
			rest = rest[1:]
			continue
		}
		if rest[0] == ':' {
			if m.Command == "" {
				break
			}
			m.Trailing = rest[1:]
			m.HasTrailing = true
			break
		}

		var tok string
		tok, rest, _ = strings.Cut(rest, " ")
		if m.Command == "" {
			m.Command = tok
			continue
		}
		if len(m.Params) < MaxParams {
			m.Params = append(m.Params, tok)
		}
	}

	if m.Command == "" {
		return nil, ErrNoCommand
	}
	return m, nil
}

// ParseAll parses lines in order. Lines that fail to parse are logged and
// skipped; they never stop the rest of the batch.
func ParseAll(lines []string, log *zap.SugaredLogger) []*Message {
	msgs := make([]*Message, 0, len(lines))
	for _, line := range lines {
		m, err := Parse(line)
		if err != nil {
			if log != nil {
				if errors.Is(err, ErrEmptyMessage) {
					log.Debug("skipping empty line")
				} else {
					log.Warnw("dropping malformed line", "line", line, "error", err)
				}
			}
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// Param returns the i'th positional parameter or "".
func (m *Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Body returns the trailing body if present, otherwise the positional
// parameter at index i. Several commands accept either form.
func (m *Message) Body(i int) (string, bool) {
	if m.HasTrailing {
		return m.Trailing, true
	}
	if i < len(m.Params) {
		return m.Params[i], true
	}
	return "", false
}

// String renders the message as a terminated wire line.
func (m *Message) String() string {
	var b strings.Builder
	if m.Origin != "" {
		b.WriteByte(':')
		b.WriteString(m.Origin)
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)
	for _, p := range m.Params {
		b.WriteByte(' ')
		b.WriteString(p)
	}
	if m.HasTrailing {
		b.WriteString(" :")
		b.WriteString(m.Trailing)
	}
	return terminate(b.String())
}

// Format renders a reply from a template and terminates it with CRLF.
func Format(format string, args ...any) string {
	return terminate(fmt.Sprintf(format, args...))
}

// terminate strips embedded line breaks, clips the line to the wire limit
// on a rune boundary and appends CRLF.
func terminate(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if strings.ContainsAny(s, "\r\n") {
		s = strings.NewReplacer("\r", "", "\n", " ").Replace(s)
	}
	if len(s) > maxContent {
		n := maxContent
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	return s + "\r\n"
}
