package telephony

import (
	"encoding/xml"
	"sort"
)

// ParamFrom is the stream parameter carrying the caller id.
const ParamFrom = "from"

// TwiML document types
type (
	twimlResponse struct {
		XMLName xml.Name      `xml:"Response"`
		Connect *twimlConnect `xml:"Connect,omitempty"`
		Say     *twimlSay     `xml:"Say,omitempty"`
		Pause   *twimlPause   `xml:"Pause,omitempty"`
	}
	twimlConnect struct {
		Stream twimlStream `xml:"Stream"`
	}
	twimlStream struct {
		URL        string           `xml:"url,attr"`
		Parameters []twimlParameter `xml:"Parameter"`
	}
	twimlParameter struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value,attr"`
	}
	twimlSay struct {
		Text string `xml:",chardata"`
	}
	twimlPause struct {
		Length int `xml:"length,attr"`
	}
)

// ConnectStream renders the directive that bridges the call to the media
// stream at streamURL, passing params as custom stream parameters.
func ConnectStream(streamURL string, params map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	stream := twimlStream{URL: streamURL}
	for _, k := range keys {
		stream.Parameters = append(stream.Parameters, twimlParameter{Name: k, Value: params[k]})
	}
	return render(twimlResponse{Connect: &twimlConnect{Stream: stream}})
}

// Fallback is the minimal response used when call setup misses its
// deadline: connect without parameters when the stream URL is known,
// otherwise apologize.
func Fallback(streamURL string) []byte {
	doc := twimlResponse{
		Say:   &twimlSay{Text: "Sorry, we are having trouble answering right now. Please call back in a minute."},
		Pause: &twimlPause{Length: 1},
	}
	if streamURL != "" {
		doc = twimlResponse{Connect: &twimlConnect{Stream: twimlStream{URL: streamURL}}}
	}
	out, err := render(doc)
	if err != nil {
		return []byte(xml.Header + "<Response></Response>")
	}
	return out
}

func render(doc twimlResponse) ([]byte, error) {
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
