package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tool is one allow-listed executable: the notary prover or verifier, or an MPC engine
// entry point. Callers never add flags to it; their arguments arrive as MPC_ARG_* variables.
type Tool struct {
	Name    string            `yaml:"name" json:"name"`
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
	// Dir is the working directory, typically the engine checkout.
	Dir         string `yaml:"dir" json:"dir"`
	Description string `yaml:"description" json:"description"`
}

// ToolsFile is the layout of tools.yaml (or tools.json).
type ToolsFile struct {
	Tools []Tool `yaml:"tools" json:"tools"`
}

// LoadTools reads the allow-list of a party or client. Entries without a name are skipped.
func LoadTools(path string) (map[string]Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tools file: %w", err)
	}

	var file ToolsFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		err = json.Unmarshal(data, &file)
	} else {
		err = yaml.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	tools := make(map[string]Tool, len(file.Tools))
	for _, tool := range file.Tools {
		if tool.Name == "" {
			continue
		}
		if err := tool.validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if _, dup := tools[tool.Name]; dup {
			return nil, fmt.Errorf("%s: tool %q is defined twice", path, tool.Name)
		}
		tools[tool.Name] = tool
	}
	return tools, nil
}

func (t Tool) validate() error {
	if t.Command == "" {
		return fmt.Errorf("tool %q has no command", t.Name)
	}
	for k := range t.Env {
		if strings.HasPrefix(strings.ToUpper(k), EnvPrefix) {
			return fmt.Errorf("tool %q: env %s would shadow a caller argument", t.Name, k)
		}
	}
	return nil
}
