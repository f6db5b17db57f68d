package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "pizza-phone-agent/backend/pkg/errors"
)

// Media stream event names
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
	EventClear     = "clear"
	EventDTMF      = "dtmf"
)

// Audio format of the media stream.
const (
	AudioEncodingMulaw = "audio/x-mulaw"
	SampleRate         = 8000
)

// StreamMessage is one frame of the media-stream protocol, in either direction.
type StreamMessage struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Protocol       string        `json:"protocol,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
}

// StartPayload describes the call when the stream starts.
type StartPayload struct {
	StreamSid        string            `json:"streamSid"`
	AccountSid       string            `json:"accountSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	CustomParameters map[string]string `json:"customParameters"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
}

// MediaFormat is the codec of the payloads.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one base64 audio chunk.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// StopPayload is sent when the call ends.
type StopPayload struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// MarkPayload names a playback marker.
type MarkPayload struct {
	Name string `json:"name"`
}

// CallerID returns the "from" custom parameter set by the call-setup webhook.
func (p *StartPayload) CallerID() string {
	if p == nil || p.CustomParameters == nil {
		return ""
	}
	return p.CustomParameters[ParamFrom]
}

// ErrMalformedFrame marks a frame that could not be decoded. The
// connection itself is still usable.
var ErrMalformedFrame = errors.New("malformed stream frame")

// DecodeStreamMessage parses one inbound frame.
func DecodeStreamMessage(data []byte) (StreamMessage, error) {
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return StreamMessage{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg.Event == "" {
		return StreamMessage{}, fmt.Errorf("%w: no event", ErrMalformedFrame)
	}
	return msg, nil
}

// StreamConn is the server side of one media-stream websocket. Reads
// must come from a single goroutine; writes are serialized.
type StreamConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	streamSid string
	closed    bool
}

// NewStreamConn wraps an upgraded websocket.
func NewStreamConn(conn *websocket.Conn) *StreamConn {
	return &StreamConn{conn: conn, writeTimeout: 5 * time.Second}
}

// Read blocks for the next frame.
func (s *StreamConn) Read() (StreamMessage, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return StreamMessage{}, err
	}
	return DecodeStreamMessage(data)
}

// SetStreamSid records the stream id that outbound frames must carry.
func (s *StreamConn) SetStreamSid(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamSid = sid
}

// SendMedia plays a base64 μ-law chunk to the caller.
func (s *StreamConn) SendMedia(payload string) error {
	return s.write(StreamMessage{Event: EventMedia, Media: &MediaPayload{Payload: payload}})
}

// Clear drops audio the caller has not heard yet.
func (s *StreamConn) Clear() error {
	return s.write(StreamMessage{Event: EventClear})
}

// SendMark asks for a mark event once playback reaches this point.
func (s *StreamConn) SendMark(name string) error {
	return s.write(StreamMessage{Event: EventMark, Mark: &MarkPayload{Name: name}})
}

func (s *StreamConn) write(msg StreamMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.streamSid == "" {
		return apperrors.ErrTransportNotOpen
	}
	msg.StreamSid = s.streamSid
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s failed: %w", msg.Event, err)
	}
	return nil
}

// Close closes the socket. Safe to call many times.
func (s *StreamConn) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}
