package contracts

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const birthSchemaURL = "https://orrery.schemas.local/natal/birth_input.schema.json"

// birthSchema mirrors the struct-level checks for callers that validate
// raw payloads before decoding. additionalProperties: false matches the
// decoder's unknown-field rejection.
var birthSchema = jsonschema.MustCompileString(birthSchemaURL, `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["birth_date", "birth_place"],
	"additionalProperties": false,
	"properties": {
		"birth_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"birth_time": {"type": "string", "pattern": "^\\d{1,2}:\\d{2}(:\\d{2}([.,]\\d{1,9})?)?$"},
		"birth_place": {"type": "string", "minLength": 1, "maxLength": 255},
		"birth_timezone": {"type": "string", "minLength": 1},
		"birth_lat": {"type": "number", "minimum": -90, "maximum": 90},
		"birth_lon": {"type": "number", "minimum": -180, "maximum": 180},
		"place_resolved_id": {"type": "string"}
	}
}`)

// ValidateBirthInputJSON checks a raw payload against the birth input
// schema.
func ValidateBirthInputJSON(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("birth input is not valid JSON: %w", err)
	}
	if err := birthSchema.Validate(doc); err != nil {
		return fmt.Errorf("birth input rejected: %w", err)
	}
	return nil
}
