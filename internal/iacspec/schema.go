package iacspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ResourceTypes are the provider agnostic resource types a spec can declare.
var ResourceTypes = []string{
	"network",
	"subnet",
	"firewall",
	"compute",
	"load_balancer",
	"database",
	"bucket",
	"cache",
	"queue",
	"dns",
	"kubernetes_cluster",
	"function",
}

func buildJSONSchema() map[string]any {
	resource := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"name", "type"},
		"properties": map[string]any{
			"name":        map[string]any{"type": "string", "pattern": `^[a-z][a-z0-9_]{0,62}$`},
			"type":        map[string]any{"type": "string", "enum": ResourceTypes},
			"description": map[string]any{"type": "string"},
			"properties":  map[string]any{"type": "object"},
			"depends_on": map[string]any{
				"type":        "array",
				"uniqueItems": true,
				"items":       map[string]any{"type": "string"},
			},
		},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"project", "provider", "resources"},
		"properties": map[string]any{
			"version":     map[string]any{"type": "string", "enum": []string{Version}},
			"project":     map[string]any{"type": "string", "minLength": 3},
			"provider":    map[string]any{"type": "string", "enum": []string{"gcp", "aws", "azure"}},
			"region":      map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"resources": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    resource,
			},
		},
	}
}

var (
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
	compileOnce       sync.Once
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(buildJSONSchema())
		if err != nil {
			compiledSchemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("iacspec.json", bytes.NewReader(b)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, compiledSchemaErr = compiler.Compile("iacspec.json")
	})
	return compiledSchema, compiledSchemaErr
}
