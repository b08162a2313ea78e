package testing

import (
	"strings"
	"sync"
)

// Outbox records lines pushed to a user in place of a connection queue
type Outbox struct {
	mu     sync.Mutex
	lines  []string
	closed bool
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Push(line string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	o.lines = append(o.lines, line)
	return true
}

func (o *Outbox) CloseWhenDrained() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}

// Closed reports whether CloseWhenDrained was called
func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Lines returns the recorded lines without their CRLF terminators
func (o *Outbox) Lines() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.lines))
	for i, line := range o.lines {
		out[i] = strings.TrimSuffix(line, "\r\n")
	}
	return out
}

// Take returns the recorded lines and forgets them
func (o *Outbox) Take() []string {
	lines := o.Lines()
	o.mu.Lock()
	o.lines = nil
	o.mu.Unlock()
	return lines
}

// Commands returns the verb or numeric of each recorded line
func (o *Outbox) Commands() []string {
	var out []string
	for _, line := range o.Lines() {
		out = append(out, Verb(line))
	}
	return out
}

// Contains reports whether any recorded line contains s
func (o *Outbox) Contains(s string) bool {
	for _, line := range o.Lines() {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

// Verb extracts the command of a raw line, skipping any origin prefix.
func Verb(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	if strings.HasPrefix(fields[0], ":") {
		if len(fields) < 2 {
			return ""
		}
		return fields[1]
	}
	return fields[0]
}
