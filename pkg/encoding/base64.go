// Package encoding provides JSON types for binary payloads and times.
package encoding

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// StdBase64Data is a byte slice carried as padded standard base64 in JSON.
// The websocket bridge uses it for exported WAV and script files.
type StdBase64Data []byte

// MarshalJSON implements json.Marshaler.
func (b StdBase64Data) MarshalJSON() ([]byte, error) {
	return []byte(`"` + base64.StdEncoding.EncodeToString(b) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. JSON null leaves b unchanged.
// Escaped line breaks inside the string are rejected.
func (b *StdBase64Data) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return errors.New("encoding: empty base64 data")
	}
	switch data[0] {
	case 'n':
		if string(data) != "null" {
			return fmt.Errorf("encoding: invalid base64 data: %s", data)
		}
		return nil
	case '"':
		if len(data) < 2 || data[len(data)-1] != '"' {
			return errors.New("encoding: unterminated base64 string")
		}
		s := string(data[1 : len(data)-1])
		if strings.Contains(s, `\`) {
			return errors.New("encoding: escape sequence in base64 string")
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("encoding: %w", err)
		}
		*b = decoded
		return nil
	default:
		return fmt.Errorf("encoding: invalid base64 data: %s", data)
	}
}

// String returns the base64 text.
func (b StdBase64Data) String() string {
	return base64.StdEncoding.EncodeToString(b)
}
