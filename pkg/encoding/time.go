package encoding

import (
	"encoding/json"
	"fmt"
	"time"
)

// Millis is a time carried as Unix milliseconds in JSON.
type Millis time.Time

// Now returns the current time as Millis.
func Now() Millis {
	return Millis(time.Now())
}

// Time returns the underlying time.
func (m Millis) Time() time.Time {
	return time.Time(m)
}

// MarshalJSON implements json.Marshaler.
func (m Millis) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(m).UnixMilli())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Millis) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("encoding: invalid millis: %w", err)
	}
	*m = Millis(time.UnixMilli(ms))
	return nil
}

// Duration is a time.Duration carried as a Go duration string ("1.5s") in
// JSON. Integer nanoseconds are accepted on input.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. JSON null leaves d unchanged.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) >= 2 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("encoding: invalid duration: %w", err)
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("encoding: %w", err)
		}
		*d = Duration(v)
		return nil
	}
	var ns int64
	if err := json.Unmarshal(b, &ns); err != nil {
		return fmt.Errorf("encoding: invalid duration: %w", err)
	}
	*d = Duration(ns)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
