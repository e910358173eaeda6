package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// HeaderSet maps custom header names to the value echoed onto a response.
type HeaderSet map[string]string

// UnmarshalJSON accepts string, number and boolean values; numbers and
// booleans are kept in their JSON text form ({"aa": 1} becomes "1").
func (h *HeaderSet) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*h = nil
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(HeaderSet, len(raw))
	for name, v := range raw {
		v = bytes.TrimSpace(v)
		if len(v) == 0 {
			continue
		}
		switch v[0] {
		case '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			out[name] = s
		case 't', 'f', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			out[name] = string(v)
		default:
			return InvalidBody(fmt.Sprintf("Not a valid HTTP header value: %s", v))
		}
	}
	*h = out
	return nil
}
