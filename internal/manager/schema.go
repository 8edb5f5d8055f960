package manager

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// appSchema is the JSON Schema for the application file shape: an
// optional import list and a list of graphs, each with an id, a rate, and
// node/edge descriptors matching the id/module/class/endpoint grammars.
const appSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "import": {
      "type": "array",
      "items": {"type": "string"}
    },
    "graphs": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"},
          "rate": {"type": "number", "minimum": 0},
          "nodes": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "id": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*$"},
                "module": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*(\\.[A-Za-z_][A-Za-z0-9_]*)*$"},
                "class": {"type": "string", "pattern": "^[A-Z][A-Za-z0-9_]*$"},
                "params": {"type": "object"}
              },
              "required": ["id", "module", "class"]
            }
          },
          "edges": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "source": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*(:([A-Za-z_][A-Za-z0-9_]*|\\*))?$"},
                "target": {"type": "string", "pattern": "^[A-Za-z_][A-Za-z0-9_]*(:([A-Za-z_][A-Za-z0-9_]*|\\*))?$"}
              },
              "required": ["source", "target"]
            }
          }
        },
        "required": ["nodes"]
      }
    }
  },
  "required": ["graphs"]
}`

// ValidationError reports one schema validation failure with the
// offending document path.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is the full set of schema failures for one document;
// Error() reports the first one, but every failure is available to a
// caller that wants to print them all.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "manager: validation failed"
	}
	return fmt.Sprintf("manager: %d validation error(s), first: %s", len(e.Errors), e.Errors[0].Error())
}

var schemaLoader = gojsonschema.NewStringLoader(appSchema)

// validateApp validates raw (already-templated, parsed-to-generic-map
// JSON bytes) against appSchema.
func validateApp(raw []byte) error {
	// gojsonschema needs a canonical JSON document; raw may have come
	// from a YAML decode that produced map[interface{}]interface{}
	// nodes upstream, so callers must pass already-json.Marshal'd bytes.
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("manager: decode application document: %w", err)
	}
	documentLoader := gojsonschema.NewGoLoader(generic)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("manager: schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	errs := make([]*ValidationError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, &ValidationError{Path: re.Field(), Message: re.Description()})
	}
	return &ValidationErrors{Errors: errs}
}
