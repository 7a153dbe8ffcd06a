package agent

import (
	"fmt"
	"os"

	"chain-of-agents-be/internal/constant"

	"gopkg.in/yaml.v3"
)

// Prompts holds the role instructions sent as the system message.
type Prompts struct {
	Worker  string `yaml:"worker"`
	Manager string `yaml:"manager"`
}

func DefaultPrompts() Prompts {
	return Prompts{
		Worker:  constant.WorkerSystemPrompt,
		Manager: constant.ManagerSystemPrompt,
	}
}

// LoadPrompts reads role prompts from a YAML file. Missing keys keep
// their defaults; an empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return prompts, fmt.Errorf("read prompts file: %w", err)
	}

	var custom Prompts
	if err := yaml.Unmarshal(raw, &custom); err != nil {
		return prompts, fmt.Errorf("parse prompts file: %w", err)
	}

	if custom.Worker != "" {
		prompts.Worker = custom.Worker
	}
	if custom.Manager != "" {
		prompts.Manager = custom.Manager
	}
	return prompts, nil
}
