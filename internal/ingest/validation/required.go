package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ingest/internal/ingest"
)

// RequiredFieldsStrategy rejects events missing any of the configured
// fields. Fields are dot separated paths; a JSON null counts as missing.
//
//	strategy_name: required-fields
//	additional_configuration: {fields: [order_id, metadata.eid]}
type RequiredFieldsStrategy struct{}

func NewRequiredFieldsStrategy() *RequiredFieldsStrategy { return &RequiredFieldsStrategy{} }

func (*RequiredFieldsStrategy) Name() string { return "required-fields" }

func (s *RequiredFieldsStrategy) Materialize(eventType ingest.EventType, cfg ingest.ValidationStrategyConfiguration) (EventValidator, error) {
	fields, err := stringsParam(cfg, "fields")
	if err != nil {
		return nil, fmt.Errorf("%s for %s: %w", s.Name(), eventType.Name, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%s for %s: no fields configured", s.Name(), eventType.Name)
	}

	fields = append([]string(nil), fields...)
	return ValidatorFunc(func(event ingest.Event) error {
		var missing []string
		for _, f := range fields {
			if v, ok := event.Lookup(f); !ok || v == nil {
				missing = append(missing, strconv.Quote(f))
			}
		}

		switch len(missing) {
		case 0:
			return nil
		case 1:
			return fmt.Errorf("missing required field %s", missing[0])
		default:
			return errors.New("missing required fields " + strings.Join(missing, ", "))
		}
	}), nil
}
