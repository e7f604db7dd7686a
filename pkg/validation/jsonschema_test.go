package validation

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

const portsSchema = `{
	"type": "object",
	"properties": {
		"PORTS": {"type": "array", "items": {"type": "integer"}},
		"MODE": {"type": "string", "enum": ["fast", "full"]}
	},
	"required": ["PORTS"]
}`

func TestValidateParams_Valid(t *testing.T) {
	assert.NoError(t, ValidateParams(portsSchema, map[string]any{"PORTS": []int{80, 443}, "MODE": "fast"}))
	assert.NoError(t, ValidateParams(portsSchema, map[string]any{"PORTS": []any{float64(22)}}))
}

func TestValidateParams_Invalid(t *testing.T) {
	err := ValidateParams(portsSchema, map[string]any{"MODE": "fast"})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "missing properties: 'PORTS'")

	err = ValidateParams(portsSchema, map[string]any{"PORTS": []string{"eighty"}})
	assert.True(t, errors.Is(err, ErrInvalid))

	err = ValidateParams(portsSchema, nil)
	assert.True(t, errors.Is(err, ErrInvalid), "nil params validate as an empty object")
}

func TestValidateParams_EmptySchema(t *testing.T) {
	assert.NoError(t, ValidateParams("", map[string]any{"anything": 1}))
}

func TestValidateParams_InvalidSchema(t *testing.T) {
	err := ValidateParams(`{"type": "object", "properties": {"name": {"type": "str"}}}`, map[string]any{})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "failed to compile JSON schema")
	assert.Error(t, ValidateSchema(`{"type": 12}`))
	assert.NoError(t, ValidateSchema(""))
}
