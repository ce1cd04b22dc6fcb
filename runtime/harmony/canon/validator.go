package canon

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/harmony/runtime/harmony/harmonyerrors"
)

// Validator evaluates canonical instances against the envelope and script
// schemas. Implementations return nil on success or a structured error whose
// details carry the underlying schema diagnostics. The validator is
// injectable so callers can substitute stricter or relaxed policies.
type Validator interface {
	// ValidateEnvelope checks a canonical envelope JSON instance.
	ValidateEnvelope(jsonText []byte) *harmonyerrors.Error
	// ValidateScript checks a decoded harmony-script body.
	ValidateScript(script any) *harmonyerrors.Error
}

// SchemaValidator is the JSON-schema backed Validator. Schemas are compiled
// once at construction and reused across validations; the compiled schemas
// are safe for concurrent use.
type SchemaValidator struct {
	envelope *jsonschema.Schema
	script   *jsonschema.Schema
}

var _ Validator = (*SchemaValidator)(nil)

// NewValidator compiles the canonical envelope and script schemas.
func NewValidator() (*SchemaValidator, error) {
	env, err := compileSchema("envelope.json", envelopeSchema)
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	script, err := compileSchema("script.json", scriptSchema)
	if err != nil {
		return nil, fmt.Errorf("compile script schema: %w", err)
	}
	return &SchemaValidator{envelope: env, script: script}, nil
}

// ValidateEnvelope checks jsonText against the canonical envelope schema.
func (v *SchemaValidator) ValidateEnvelope(jsonText []byte) *harmonyerrors.Error {
	var doc any
	if err := json.Unmarshal(jsonText, &doc); err != nil {
		return harmonyerrors.Wrap(harmonyerrors.CodeSchemaEnvelopeFailed,
			"envelope is not valid JSON", err)
	}
	if err := v.envelope.Validate(doc); err != nil {
		return harmonyerrors.Wrap(harmonyerrors.CodeSchemaEnvelopeFailed,
			"envelope violates the canonical schema", err).
			WithDetail("cause", err.Error())
	}
	return nil
}

// ValidateScript checks a decoded harmony-script body against the script
// schema. The value is re-encoded through JSON so typed script values and
// raw maps validate uniformly.
func (v *SchemaValidator) ValidateScript(script any) *harmonyerrors.Error {
	raw, err := json.Marshal(script)
	if err != nil {
		return harmonyerrors.Wrap(harmonyerrors.CodeSchemaScriptFailed,
			"script is not JSON-encodable", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return harmonyerrors.Wrap(harmonyerrors.CodeSchemaScriptFailed,
			"script is not valid JSON", err)
	}
	if err := v.script.Validate(doc); err != nil {
		return harmonyerrors.Wrap(harmonyerrors.CodeSchemaScriptFailed,
			"script violates the script schema", err).
			WithDetail("cause", err.Error())
	}
	return nil
}

func compileSchema(name, source string) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(source), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(name)
}
