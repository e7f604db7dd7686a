package validation

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalid marks data that does not satisfy its schema.
var ErrInvalid = errors.New("data does not match schema")

// CompileSchema parses a JSON schema document.
func CompileSchema(schemaJSON string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, errors.Wrap(err, "failed to add schema resource")
	}
	sch, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile JSON schema")
	}
	return sch, nil
}

// ValidateParams checks custom data for an on-demand execution against the
// template's schema. An empty schema accepts anything.
func ValidateParams(schemaJSON string, params map[string]any) error {
	if schemaJSON == "" {
		return nil
	}
	sch, err := CompileSchema(schemaJSON)
	if err != nil {
		return err
	}

	// Round-trip through JSON so Go values take the shapes the validator
	// expects (float64 numbers, []any arrays).
	raw, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal params")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.Wrap(err, "failed to unmarshal params")
	}
	if params == nil {
		doc = map[string]any{}
	}

	if err := sch.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return errors.Mark(errors.Newf("params failed validation: %v", ve), ErrInvalid)
		}
		return errors.Wrap(err, "params failed validation")
	}
	return nil
}

// ValidateSchema reports whether schemaJSON is a usable schema.
func ValidateSchema(schemaJSON string) error {
	if schemaJSON == "" {
		return nil
	}
	_, err := CompileSchema(schemaJSON)
	return err
}
