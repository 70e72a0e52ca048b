package config

//go:generate go run ../tools/schema-generator -o ../schema/buildhub.schema.json

import (
	"encoding/json"

	"github.com/grovetools/buildhub/schema"
	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects Config into a JSON Schema. Sections are closed;
// unknown top-level keys are allowed so extensions such as logging validate.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
		DoNotReference:            true,
	}

	s := r.Reflect(&Config{})
	s.Title = "buildhub configuration"
	s.Description = "Settings for the buildhub daemon, read from buildhub.toml or buildhub.yml."
	s.Version = "http://json-schema.org/draft-07/schema#"
	s.AdditionalProperties = jsonschema.TrueSchema

	return json.MarshalIndent(s, "", "  ")
}

// SchemaValidator validates raw configuration documents against the
// generated schema.
type SchemaValidator struct {
	validator *schema.Validator
}

// NewSchemaValidator compiles the configuration schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	data, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	validator, err := schema.NewValidator("buildhub.json", data)
	if err != nil {
		return nil, err
	}
	return &SchemaValidator{validator: validator}, nil
}

// Validate validates configuration data against the schema.
func (v *SchemaValidator) Validate(configData interface{}) error {
	return v.validator.Validate(configData)
}
