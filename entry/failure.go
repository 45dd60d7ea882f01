package entry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Failure is the serialized description of a handler error.
type Failure struct {
	Name    string   `json:"name"`
	Message string   `json:"message"`
	Cause   *Failure `json:"cause,omitempty"`
}

// maxCauseDepth bounds the serialized unwrap chain.
const maxCauseDepth = 8

// SerializeError encodes err as a JSON Failure document suitable for
// Entry.Error. A nil error yields "".
func SerializeError(err error) string {
	if err == nil {
		return ""
	}
	b, mErr := json.Marshal(newFailure(err, 0))
	if mErr != nil {
		return err.Error()
	}
	return string(b)
}

func newFailure(err error, depth int) *Failure {
	f := &Failure{Name: fmt.Sprintf("%T", err), Message: err.Error()}
	if depth < maxCauseDepth {
		if cause := errors.Unwrap(err); cause != nil {
			f.Cause = newFailure(cause, depth+1)
		}
	}
	return f
}

// ParseFailure decodes an Entry.Error value. Values that are not JSON are
// returned as a bare message.
func ParseFailure(s string) *Failure {
	if s == "" {
		return nil
	}
	var f Failure
	if err := json.Unmarshal([]byte(s), &f); err != nil || f.Message == "" {
		return &Failure{Message: s}
	}
	return &f
}
