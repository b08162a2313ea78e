package server

import "net"

type eventKind int

const (
	evAccepted eventKind = iota
	evLines
	evDrained
	evClosed
)

func (k eventKind) String() string {
	switch k {
	case evAccepted:
		return "accepted"
	case evLines:
		return "lines"
	case evDrained:
		return "drained"
	case evClosed:
		return "closed"
	}
	return "unknown"
}

// pump names the goroutine that raised an evClosed.
type pump int

const (
	reader pump = iota
	writer
)

func (p pump) String() string {
	if p == writer {
		return "write"
	}
	return "read"
}

// event is the only way pumps and the acceptor talk to the loop.
type event struct {
	kind    eventKind
	conn    *conn
	netConn net.Conn
	lines   []string
	err     error
	from    pump
}
