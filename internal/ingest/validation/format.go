package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"ingest/internal/ingest"
)

// FieldFormatStrategy applies go-playground validator tags to individual
// fields. "rules" maps a field path to a tag expression, e.g.
// {"customer.email": "required,email", "currency": "iso4217"}. Absent fields
// are only reported when their tag contains "required".
type FieldFormatStrategy struct {
	validate *validator.Validate
}

func NewFieldFormatStrategy() *FieldFormatStrategy {
	return &FieldFormatStrategy{validate: validator.New()}
}

func (*FieldFormatStrategy) Name() string { return "field-format" }

type formatRule struct {
	path     string
	tag      string
	required bool
}

func (s *FieldFormatStrategy) Materialize(eventType ingest.EventType, cfg ingest.ValidationStrategyConfiguration) (EventValidator, error) {
	raw, ok := cfg.Params["rules"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%s for %s: parameter \"rules\" must be a non-empty object", s.Name(), eventType.Name)
	}

	rules := make([]formatRule, 0, len(raw))
	for path, v := range raw {
		tag, ok := v.(string)
		if !ok || tag == "" {
			return nil, fmt.Errorf("%s for %s: rule for %q must be a tag string", s.Name(), eventType.Name, path)
		}
		if err := s.checkTag(tag); err != nil {
			return nil, fmt.Errorf("%s for %s: rule for %q: %w", s.Name(), eventType.Name, path, err)
		}
		rules = append(rules, formatRule{
			path:     path,
			tag:      tag,
			required: strings.Contains(tag, "required"),
		})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].path < rules[j].path })

	return ValidatorFunc(func(event ingest.Event) error {
		var reasons []string
		for _, r := range rules {
			v, ok := event.Lookup(r.path)
			if !ok || v == nil {
				if r.required {
					reasons = append(reasons, fmt.Sprintf("field %q is required", r.path))
				}
				continue
			}

			err := s.check(v, r.tag)
			if err == nil {
				continue
			}
			var fieldErrs validator.ValidationErrors
			if !errors.As(err, &fieldErrs) {
				reasons = append(reasons, fmt.Sprintf("field %q: %v", r.path, err))
				continue
			}
			for _, fe := range fieldErrs {
				reasons = append(reasons, fmt.Sprintf("field %q failed %q", r.path, fe.Tag()))
			}
		}

		if len(reasons) == 0 {
			return nil
		}
		return errors.New(strings.Join(reasons, ", "))
	}), nil
}

// check runs tag against a producer supplied value. The validator panics when
// a tag does not apply to the value's kind, such as min=1 on a bool.
func (s *FieldFormatStrategy) check(v any, tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unsupported value type %T", v)
		}
	}()
	return s.validate.Var(v, tag)
}

// checkTag parses tag once so that undefined tags fail here rather than
// panicking inside Validate. A nil value parses the tag without running any
// validation function.
func (s *FieldFormatStrategy) checkTag(tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid tag %q: %v", tag, r)
		}
	}()
	_ = s.validate.Var(nil, tag)
	return nil
}
