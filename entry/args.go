package entry

import (
	"encoding/json"
	"fmt"
)

// Args is the ordered list of JSON-encoded handler arguments.
type Args []json.RawMessage

// NewArgs encodes each value as one positional argument.
func NewArgs(values ...any) (Args, error) {
	args := make(Args, len(values))
	for i, v := range values {
		if raw, ok := v.(json.RawMessage); ok {
			args[i] = raw
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode argument %d: %w", i, err)
		}
		args[i] = b
	}
	return args, nil
}

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

// Decode unmarshals the argument at index i into v. A missing argument
// leaves v untouched, mirroring an omitted trailing parameter.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return nil
	}
	if err := json.Unmarshal(a[i], v); err != nil {
		return fmt.Errorf("decode argument %d: %w", i, err)
	}
	return nil
}

// Clone returns a deep copy of a.
func (a Args) Clone() Args {
	if a == nil {
		return nil
	}
	out := make(Args, len(a))
	for i, raw := range a {
		out[i] = append(json.RawMessage(nil), raw...)
	}
	return out
}

// MarshalText encodes the list as a JSON array for text columns.
func (a Args) MarshalText() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]json.RawMessage(a))
}

// ParseArgs decodes a JSON array produced by MarshalText.
func ParseArgs(data []byte) (Args, error) {
	if len(data) == 0 {
		return Args{}, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	return Args(raw), nil
}

// MarshalJSON encodes the list as a JSON array rather than the quoted
// text form.
func (a Args) MarshalJSON() ([]byte, error) {
	return a.MarshalText()
}
