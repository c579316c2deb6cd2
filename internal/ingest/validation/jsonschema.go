package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"ingest/internal/ingest"
)

// JSONSchemaStrategy validates the whole event against a JSON schema given
// either as a JSON string or as an inline object under "schema".
type JSONSchemaStrategy struct{}

func NewJSONSchemaStrategy() *JSONSchemaStrategy { return &JSONSchemaStrategy{} }

func (*JSONSchemaStrategy) Name() string { return "json-schema" }

func (s *JSONSchemaStrategy) Materialize(eventType ingest.EventType, cfg ingest.ValidationStrategyConfiguration) (EventValidator, error) {
	var doc string
	switch v := cfg.Params["schema"].(type) {
	case string:
		doc = v
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s for %s: failed to encode schema: %w", s.Name(), eventType.Name, err)
		}
		doc = string(b)
	default:
		return nil, fmt.Errorf("%s for %s: parameter \"schema\" must be a JSON string or object, got %T", s.Name(), eventType.Name, v)
	}

	schema, err := jsonschema.CompileString(eventType.Name+".schema.json", doc)
	if err != nil {
		return nil, fmt.Errorf("%s for %s: failed to compile schema: %w", s.Name(), eventType.Name, err)
	}

	return ValidatorFunc(func(event ingest.Event) error {
		err := schema.Validate(map[string]any(event))
		if err == nil {
			return nil
		}

		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		return errors.New(strings.Join(leafMessages(ve, nil), ", "))
	}), nil
}

// leafMessages flattens a validation error tree into "location: message" lines.
func leafMessages(ve *jsonschema.ValidationError, out []string) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return append(out, loc+": "+ve.Message)
	}
	for _, c := range ve.Causes {
		out = leafMessages(c, out)
	}
	return out
}
