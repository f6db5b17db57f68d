package session

import (
	"pizza-phone-agent/backend/internal/order"
	"pizza-phone-agent/backend/internal/realtime"
)

// EventKind identifies what an Event carries.
type EventKind int

const (
	// EventCallerAudio is one inbound μ-law frame from the phone.
	EventCallerAudio EventKind = iota
	// EventAIServer is an event read from the AI leg.
	EventAIServer
	// EventAIConn is a connection state change of the AI leg.
	EventAIConn
	// EventTimer runs a scheduled callback on the loop.
	EventTimer
	// EventFinalized reports an off-loop finalize attempt.
	EventFinalized
)

func (k EventKind) String() string {
	switch k {
	case EventCallerAudio:
		return "caller_audio"
	case EventAIServer:
		return "ai_server"
	case EventAIConn:
		return "ai_conn"
	case EventTimer:
		return "timer"
	case EventFinalized:
		return "finalized"
	}
	return "unknown"
}

// Event is the single input type of a session loop. Both transports and
// the session's own timers feed it.
type Event struct {
	Kind EventKind

	// EventCallerAudio
	Payload string

	// EventAIServer
	Server realtime.ServerEvent

	// EventAIConn
	Conn      realtime.ConnState
	Reconnect bool

	// EventTimer
	Fire func()

	// EventFinalized
	Outcome order.Outcome
	Missing []string
	Reason  string
}
