package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

// flexInt accepts 2, 2.0, "2" and "10 pieces".
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		digits := leadingNumber.FindString(s)
		if digits == "" {
			*n = 0
			return nil
		}
		b = []byte(digits)
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*n = flexInt(int(f))
	return nil
}

func (flexInt) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer"}
}

// flexStrings accepts a list of strings or one comma separated string.
type flexStrings []string

func (s *flexStrings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = nil
		return nil
	}
	if b[0] == '[' {
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*s = cleanList(list)
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = cleanList(strings.Split(one, ","))
	return nil
}

func (flexStrings) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}}
}

func cleanList(list []string) []string {
	var out []string
	for _, v := range list {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

var (
	leadingNumber = regexp.MustCompile(`-?[0-9]+(?:\.[0-9]+)?`)
	// "key": value pairs inside otherwise broken JSON
	salvageField = regexp.MustCompile(`"([A-Za-z_][A-Za-z0-9_]*)"\s*:\s*("(?:[^"\\]|\\.)*"|-?[0-9]+(?:\.[0-9]+)?|true|false|null)`)
)

// decodeArguments unmarshals raw tool arguments into dst. Malformed JSON
// is salvaged field by field; salvaged reports whether that happened.
func decodeArguments(raw string, dst interface{}) (salvaged bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), dst); err == nil {
		return false, nil
	}

	matches := salvageField.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return false, fmt.Errorf("failed to parse arguments: no recognizable fields")
	}
	fields := make(map[string]json.RawMessage, len(matches))
	for _, m := range matches {
		if _, seen := fields[m[1]]; !seen {
			fields[m[1]] = json.RawMessage(m[2])
		}
	}
	repaired, err := json.Marshal(fields)
	if err != nil {
		return false, fmt.Errorf("failed to parse arguments: %w", err)
	}
	if err := json.Unmarshal(repaired, dst); err != nil {
		return false, fmt.Errorf("failed to parse arguments: %w", err)
	}
	return true, nil
}
