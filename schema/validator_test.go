package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "daemon": {
      "type": "object",
      "properties": {"debounce": {"type": "string"}},
      "additionalProperties": false
    }
  }
}`

func TestValidator(t *testing.T) {
	v, err := NewValidator("test.json", []byte(testSchema))
	require.NoError(t, err)

	tests := []struct {
		name    string
		data    interface{}
		wantErr string
	}{
		{name: "empty document", data: map[string]interface{}{}},
		{name: "valid section", data: map[string]interface{}{"daemon": map[string]interface{}{"debounce": "1s"}}},
		{name: "wrong type", data: map[string]interface{}{"daemon": map[string]interface{}{"debounce": 5}}, wantErr: "/daemon/debounce"},
		{name: "unknown key", data: map[string]interface{}{"daemon": map[string]interface{}{"bogus": true}}, wantErr: "/daemon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.data)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewValidatorRejectsBadSchema(t *testing.T) {
	_, err := NewValidator("bad.json", []byte(`{"type": 12}`))
	assert.Error(t, err)
}
