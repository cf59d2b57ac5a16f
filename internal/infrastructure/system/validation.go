package system

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema describes ~/.krew-wasm/config.yaml. Unknown keys are rejected.
const configSchema = `{
  "type": ["object", "null"],
  "additionalProperties": false,
  "properties": {
    "store": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "root": {"type": "string"},
        "bin_root": {"type": "string"}
      }
    },
    "registry": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "docker_config": {"type": "string"},
        "plain_http": {"type": "array", "items": {"type": "string", "minLength": 1}}
      }
    },
    "kubeconfig": {"type": "string"},
    "runtime": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "wasm_memory_limit_mb": {"type": "integer", "minimum": -1},
        "compilation_cache": {"type": "boolean"}
      }
    }
  }
}`

var compiledConfigSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("config.json", strings.NewReader(configSchema)); err != nil {
		return nil, fmt.Errorf("failed to add config schema: %w", err)
	}
	return compiler.Compile("config.json")
})

// validateConfigDocument checks the raw config file against configSchema.
func validateConfigDocument(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	schema, err := compiledConfigSchema()
	if err != nil {
		return err
	}

	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("failed to parse system config: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(jsonData))
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse system config: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			return formatValidationError(validationErr)
		}
		return fmt.Errorf("system config validation failed: %w", err)
	}
	return nil
}

// formatValidationError flattens a schema validation error into one line per
// failing location.
func formatValidationError(err *jsonschema.ValidationError) error {
	var messages []string

	var collect func(*jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 && e.Message != "" {
			location := e.InstanceLocation
			if location == "" {
				location = "(root)"
			}
			messages = append(messages, fmt.Sprintf("%s: %s", location, e.Message))
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(err)

	if len(messages) == 0 {
		return fmt.Errorf("invalid system config: %s", err.Message)
	}
	return fmt.Errorf("invalid system config:\n  - %s", strings.Join(messages, "\n  - "))
}
