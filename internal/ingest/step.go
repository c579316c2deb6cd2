package ingest

import (
	"fmt"
	"strings"
)

// Step is the pipeline stage an item is in. Steps only move forward; an item
// that fails stays at the step where it failed.
type Step int

const (
	StepNone Step = iota
	StepValidating
	StepEnriching
	StepPartitioning
	StepPublishing
	StepPublished
)

var stepNames = [...]string{
	StepNone:         "none",
	StepValidating:   "validating",
	StepEnriching:    "enriching",
	StepPartitioning: "partitioning",
	StepPublishing:   "publishing",
	StepPublished:    "published",
}

func (s Step) String() string {
	if s < StepNone || s > StepPublished {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// MarshalText encodes the step in lower case.
func (s Step) MarshalText() ([]byte, error) {
	if s < StepNone || s > StepPublished {
		return nil, fmt.Errorf("invalid step %d", int(s))
	}
	return []byte(stepNames[s]), nil
}

// UnmarshalText accepts step names case-insensitively.
func (s *Step) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range stepNames {
		if n == name {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("illegal step value: %q, possible values: [%s]", string(b), strings.Join(stepNames[:], ", "))
}
