package envelope

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const metadataSchemaURL = "ledgerfs://envelope/metadata.json"

// metadataSchema constrains the known metadata keys. Additional keys are
// allowed so that newer writers stay readable.
const metadataSchema = `{
  "type": "object",
  "required": ["kind", "name", "ownerId", "createdAt"],
  "properties": {
    "kind":            {"enum": ["folder", "file"]},
    "name":            {"type": "string", "minLength": 1},
    "ownerId":         {"type": "string", "minLength": 1},
    "parentFolderId":  {"type": "string"},
    "path":            {"type": "string"},
    "contentSize":     {"type": "integer", "minimum": 0},
    "contentEncoding": {"type": "string"},
    "contentType":     {"type": "string"},
    "version":         {"type": "string", "minLength": 1},
    "createdAt":       {"type": "integer", "minimum": 0},
    "updatedAt":       {"type": "integer", "minimum": 0}
  },
  "if":   {"properties": {"kind": {"const": "file"}}},
  "then": {"required": ["parentFolderId", "version"]}
}`

func compileMetadataSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(metadataSchema))
	if err != nil {
		return nil, fmt.Errorf("envelope: parse metadata schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(metadataSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("envelope: add metadata schema: %w", err)
	}
	sch, err := c.Compile(metadataSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("envelope: compile metadata schema: %w", err)
	}
	return sch, nil
}

// validateMetadataJSON checks raw metadata JSON against the schema.
func validateMetadataJSON(sch *jsonschema.Schema, raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}
