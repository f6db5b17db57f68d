package telephony

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pizza-phone-agent/backend/pkg/errors"
)

func TestDecodeStreamMessage_Start(t *testing.T) {
	msg, err := DecodeStreamMessage([]byte(`{
		"event":"start","sequenceNumber":"1","streamSid":"MZ1",
		"start":{"streamSid":"MZ1","accountSid":"AC1","callSid":"CA1","tracks":["inbound"],
			"customParameters":{"from":"+15551234567"},
			"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1}}}`))
	require.NoError(t, err)

	assert.Equal(t, EventStart, msg.Event)
	require.NotNil(t, msg.Start)
	assert.Equal(t, "CA1", msg.Start.CallSid)
	assert.Equal(t, "+15551234567", msg.Start.CallerID())
	assert.Equal(t, AudioEncodingMulaw, msg.Start.MediaFormat.Encoding)
}

func TestDecodeStreamMessage_Media(t *testing.T) {
	msg, err := DecodeStreamMessage([]byte(`{"event":"media","streamSid":"MZ1","media":{"track":"inbound","chunk":"2","timestamp":"20","payload":"//8="}}`))
	require.NoError(t, err)
	assert.Equal(t, "//8=", msg.Media.Payload)

	_, err = DecodeStreamMessage([]byte(`{"streamSid":"MZ1"}`))
	assert.Error(t, err)
}

func TestStartPayload_CallerIDMissing(t *testing.T) {
	var p *StartPayload
	assert.Empty(t, p.CallerID())
	assert.Empty(t, (&StartPayload{}).CallerID())
}

func TestConnectStream(t *testing.T) {
	out, err := ConnectStream("wss://pizza.example.com/media-stream", map[string]string{
		"from":    "+15551234567",
		"callSid": "CA1",
	})
	require.NoError(t, err)

	doc := string(out)
	assert.True(t, strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, doc, `<Response><Connect><Stream url="wss://pizza.example.com/media-stream">`)
	// Parameters are sorted by name.
	assert.Contains(t, doc, `<Parameter name="callSid" value="CA1"></Parameter><Parameter name="from" value="+15551234567"></Parameter>`)
}

func TestFallback(t *testing.T) {
	assert.Contains(t, string(Fallback("wss://pizza.example.com/media-stream")), `<Stream url="wss://pizza.example.com/media-stream"></Stream>`)

	noStream := string(Fallback(""))
	assert.Contains(t, noStream, "<Say>Sorry")
	assert.NotContains(t, noStream, "<Connect>")
}

func TestSignature(t *testing.T) {
	params := url.Values{
		"CallSid": {"CA1234567890ABCDE"},
		"From":    {"+12349013030"},
		"To":      {"+18005551212"},
	}
	u := "https://pizza.example.com/incoming-call"
	sig := ComputeSignature("secret", u, params)

	assert.True(t, ValidateSignature("secret", u, params, sig))
	assert.False(t, ValidateSignature("other", u, params, sig))
	assert.False(t, ValidateSignature("secret", u+"?x=1", params, sig))

	tampered := url.Values{"CallSid": {"CA1234567890ABCDE"}, "From": {"+19999999999"}, "To": {"+18005551212"}}
	assert.False(t, ValidateSignature("secret", u, tampered, sig))
	assert.False(t, ValidateSignature("secret", u, params, ""))
}

func TestStreamConn_WritesCarryStreamSid(t *testing.T) {
	received := make(chan StreamMessage, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sc := NewStreamConn(conn)
		defer sc.Close()

		// Writes before the stream id is known are refused.
		if err := sc.SendMedia("AAAA"); err != apperrors.ErrTransportNotOpen {
			t.Errorf("expected ErrTransportNotOpen, got %v", err)
		}
		sc.SetStreamSid("MZ9")
		_ = sc.SendMedia("AAAA")
		_ = sc.Clear()
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	go func() {
		for {
			_, data, err := client.ReadMessage()
			if err != nil {
				close(received)
				return
			}
			msg, err := DecodeStreamMessage(data)
			if err == nil {
				received <- msg
			}
		}
	}()

	first := <-received
	assert.Equal(t, EventMedia, first.Event)
	assert.Equal(t, "MZ9", first.StreamSid)
	assert.Equal(t, "AAAA", first.Media.Payload)

	second := <-received
	assert.Equal(t, EventClear, second.Event)
	assert.Equal(t, "MZ9", second.StreamSid)
}
