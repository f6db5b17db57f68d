package realtime

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Client event types
const (
	EventSessionUpdate          = "session.update"
	EventInputAudioBufferAppend = "input_audio_buffer.append"
	EventConversationItemCreate = "conversation.item.create"
	EventResponseCreate         = "response.create"
	EventResponseCancel         = "response.cancel"
)

// Server event types
const (
	EventSessionCreated              = "session.created"
	EventSessionUpdated              = "session.updated"
	EventSpeechStarted               = "input_audio_buffer.speech_started"
	EventSpeechStopped               = "input_audio_buffer.speech_stopped"
	EventInputCommitted              = "input_audio_buffer.committed"
	EventResponseCreated             = "response.created"
	EventResponseAudioDelta          = "response.audio.delta"
	EventResponseAudioDone           = "response.audio.done"
	EventResponseAudioTranscriptDone = "response.audio_transcript.done"
	EventFunctionCallArgumentsDone   = "response.function_call_arguments.done"
	EventResponseDone                = "response.done"
	EventError                       = "error"
)

// Response statuses reported by response.done
const (
	ResponseStatusCompleted  = "completed"
	ResponseStatusCancelled  = "cancelled"
	ResponseStatusFailed     = "failed"
	ResponseStatusIncomplete = "incomplete"
)

// ErrorCodeRateLimit marks a rate-limited request
const ErrorCodeRateLimit = "rate_limit_exceeded"

// Tool is a function the model may call.
type Tool struct {
	Type        string      `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  interface{} `json:"parameters"`
}

// ClientEvent is any message sent to the AI transport.
type ClientEvent struct {
	Type     string            `json:"type"`
	Session  *SessionConfig    `json:"session,omitempty"`
	Audio    string            `json:"audio,omitempty"`
	Item     *ConversationItem `json:"item,omitempty"`
	Response *ResponseParams   `json:"response,omitempty"`
}

// ConversationItem is the payload of conversation.item.create.
type ConversationItem struct {
	Type    string        `json:"type"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

// ContentPart is one piece of a message item.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ResponseParams overrides defaults for one response.create.
type ResponseParams struct {
	Instructions string `json:"instructions,omitempty"`
}

// SessionUpdate builds a session.update event.
func SessionUpdate(cfg SessionConfig) ClientEvent {
	return ClientEvent{Type: EventSessionUpdate, Session: &cfg}
}

// AppendAudio builds an input_audio_buffer.append event from a base64 payload.
func AppendAudio(payload string) ClientEvent {
	return ClientEvent{Type: EventInputAudioBufferAppend, Audio: payload}
}

// FunctionCallOutput builds the item carrying a tool result back to the model.
func FunctionCallOutput(callID, output string) ClientEvent {
	return ClientEvent{
		Type: EventConversationItemCreate,
		Item: &ConversationItem{Type: "function_call_output", CallID: callID, Output: output},
	}
}

// SystemMessage builds a system message item, used to restore context after a reconnect.
func SystemMessage(text string) ClientEvent {
	return ClientEvent{
		Type: EventConversationItemCreate,
		Item: &ConversationItem{
			Type:    "message",
			Role:    "system",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

// CreateResponse builds a response.create event.
func CreateResponse(instructions string) ClientEvent {
	ev := ClientEvent{Type: EventResponseCreate}
	if instructions != "" {
		ev.Response = &ResponseParams{Instructions: instructions}
	}
	return ev
}

// CancelResponse builds a response.cancel event.
func CancelResponse() ClientEvent {
	return ClientEvent{Type: EventResponseCancel}
}

// ServerEvent is the union of the inbound events this service consumes.
type ServerEvent struct {
	Type       string        `json:"type"`
	EventID    string        `json:"event_id,omitempty"`
	ResponseID string        `json:"response_id,omitempty"`
	ItemID     string        `json:"item_id,omitempty"`
	Delta      string        `json:"delta,omitempty"`
	Transcript string        `json:"transcript,omitempty"`
	CallID     string        `json:"call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
	Arguments  string        `json:"arguments,omitempty"`
	Response   *ResponseInfo `json:"response,omitempty"`
	Error      *ErrorInfo    `json:"error,omitempty"`
}

// ResponseInfo is the response object on response.created/response.done.
type ResponseInfo struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	StatusDetails *StatusDetails `json:"status_details,omitempty"`
}

// StatusDetails explains a non-completed response.
type StatusDetails struct {
	Type   string     `json:"type"`
	Reason string     `json:"reason,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is the error payload of error events and failed responses.
type ErrorInfo struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// ParseServerEvent decodes one inbound message.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var ev ServerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ServerEvent{}, fmt.Errorf("failed to decode server event: %w", err)
	}
	if ev.Type == "" {
		return ServerEvent{}, fmt.Errorf("server event without type")
	}
	return ev, nil
}

// ResponseStatus returns the status carried by response.done, or "".
func (e ServerEvent) ResponseStatus() string {
	if e.Response == nil {
		return ""
	}
	return e.Response.Status
}

var retryAfterPattern = regexp.MustCompile(`(?i)try again in ([0-9]+(?:\.[0-9]+)?)\s*(ms|s)`)

// RateLimited reports whether the event signals a rate limit, with the
// back-off the transport asked for (zero when none was given).
func (e ServerEvent) RateLimited() (time.Duration, bool) {
	var info *ErrorInfo
	switch {
	case e.Error != nil:
		info = e.Error
	case e.Response != nil && e.Response.StatusDetails != nil:
		info = e.Response.StatusDetails.Error
	}
	if info == nil || (info.Code != ErrorCodeRateLimit && info.Type != "rate_limit_error") {
		return 0, false
	}
	return parseRetryAfter(info.Message), true
}

func parseRetryAfter(message string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(message)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if m[2] == "ms" {
		return time.Duration(v * float64(time.Millisecond))
	}
	return time.Duration(v * float64(time.Second))
}
