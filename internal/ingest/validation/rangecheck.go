package validation

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"ingest/internal/ingest"
)

// FieldRangeStrategy checks a numeric field against inclusive bounds using
// exact decimal arithmetic, so "0.1" style limits behave as written.
//
//	additional_configuration: {field: amount, min: "0.01", max: 10000}
type FieldRangeStrategy struct{}

func NewFieldRangeStrategy() *FieldRangeStrategy { return &FieldRangeStrategy{} }

func (*FieldRangeStrategy) Name() string { return "field-range" }

func (s *FieldRangeStrategy) Materialize(eventType ingest.EventType, cfg ingest.ValidationStrategyConfiguration) (EventValidator, error) {
	field, ok := stringParam(cfg, "field")
	if !ok {
		return nil, fmt.Errorf("%s for %s: parameter \"field\" is required", s.Name(), eventType.Name)
	}

	lo, hasLo, err := decimalParam(cfg, "min")
	if err != nil {
		return nil, fmt.Errorf("%s for %s: %w", s.Name(), eventType.Name, err)
	}
	hi, hasHi, err := decimalParam(cfg, "max")
	if err != nil {
		return nil, fmt.Errorf("%s for %s: %w", s.Name(), eventType.Name, err)
	}
	if !hasLo && !hasHi {
		return nil, fmt.Errorf("%s for %s: at least one of \"min\" or \"max\" is required", s.Name(), eventType.Name)
	}
	if hasLo && hasHi && lo.GreaterThan(hi) {
		return nil, fmt.Errorf("%s for %s: min %s exceeds max %s", s.Name(), eventType.Name, lo, hi)
	}

	return ValidatorFunc(func(event ingest.Event) error {
		v, ok := event.Lookup(field)
		if !ok || v == nil {
			return fmt.Errorf("field %q is missing", field)
		}
		d, err := toDecimal(v)
		if err != nil {
			return fmt.Errorf("field %q is not numeric", field)
		}
		if hasLo && d.LessThan(lo) {
			return fmt.Errorf("field %q is %s, below minimum %s", field, d, lo)
		}
		if hasHi && d.GreaterThan(hi) {
			return fmt.Errorf("field %q is %s, above maximum %s", field, d, hi)
		}
		return nil
	}), nil
}

func decimalParam(cfg ingest.ValidationStrategyConfiguration, key string) (decimal.Decimal, bool, error) {
	v, ok := cfg.Params[key]
	if !ok || v == nil {
		return decimal.Zero, false, nil
	}
	d, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parameter %q: %w", key, err)
	}
	return d, true, nil
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(n)
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric type %T", v)
	}
}
