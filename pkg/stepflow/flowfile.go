package stepflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// flowFile is the on-disk flow definition format: either a single flow
// or a list under a "flows" key.
type flowFile struct {
	Flows []Flow `json:"flows" yaml:"flows"`
}

// DecodeFlowsYAML parses flow definitions from YAML data.
// The document may be a single flow object or {flows: [...]}.
func DecodeFlowsYAML(data []byte) ([]Flow, error) {
	var file flowFile
	if err := yaml.Unmarshal(data, &file); err == nil && len(file.Flows) > 0 {
		return file.Flows, nil
	}

	var flow Flow
	if err := yaml.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("parse yaml flow definition: %w", err)
	}
	if flow.ID == "" && len(flow.Steps) == 0 {
		return nil, fmt.Errorf("yaml document contains no flow definition")
	}
	return []Flow{flow}, nil
}

// DecodeFlowsJSON parses flow definitions from JSON data.
// The document may be a single flow object or {"flows": [...]}.
func DecodeFlowsJSON(data []byte) ([]Flow, error) {
	var file flowFile
	if err := json.Unmarshal(data, &file); err == nil && len(file.Flows) > 0 {
		return file.Flows, nil
	}

	var flow Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("parse json flow definition: %w", err)
	}
	if flow.ID == "" && len(flow.Steps) == 0 {
		return nil, fmt.Errorf("json document contains no flow definition")
	}
	return []Flow{flow}, nil
}

// LoadFlowsFile reads flow definitions from a file, auto-detecting the
// format by extension. Supported extensions: .yaml, .yml, .json.
//
// Loading performs no validation; feed the result to NewRegistry.
func LoadFlowsFile(path string) ([]Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeFlowsYAML(data)
	case ".json":
		return DecodeFlowsJSON(data)
	default:
		return nil, fmt.Errorf("unsupported flow file extension: %s", filepath.Ext(path))
	}
}
