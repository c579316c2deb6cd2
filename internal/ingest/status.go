package ingest

import (
	"fmt"
	"strings"
)

// Status is the publishing outcome of a single item.
type Status int

const (
	StatusSubmitted Status = iota
	StatusProcessing
	StatusSuccess
	StatusFailed
	// StatusAborted means the pipeline gave up on the item for reasons not
	// caused by the item itself, e.g. the batch deadline expired.
	StatusAborted
)

var statusNames = [...]string{
	StatusSubmitted:  "submitted",
	StatusProcessing: "processing",
	StatusSuccess:    "success",
	StatusFailed:     "failed",
	StatusAborted:    "aborted",
}

func (s Status) String() string {
	if s < StatusSubmitted || s > StatusAborted {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusAborted
}

// MarshalText encodes the status in lower case.
func (s Status) MarshalText() ([]byte, error) {
	if s < StatusSubmitted || s > StatusAborted {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

// UnmarshalText accepts status names case-insensitively.
func (s *Status) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("illegal status value: %q, possible values: [%s]", string(b), strings.Join(statusNames[:], ", "))
}
