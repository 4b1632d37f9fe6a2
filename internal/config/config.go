// Package config loads declarative orchestration and workflow definitions
// from YAML. All runtime configuration still flows through constructor
// arguments; this package only parses the on-disk shapes and
// hands back validated definitions for callers to build with.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentDefinition declares one agent of an orchestration.
type AgentDefinition struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	SystemPrompt  string `yaml:"system_prompt"`
	MaxIterations int    `yaml:"max_iterations"`
}

// TerminationDefinition declares the stop condition for an orchestration.
// MaxMessages and TextMention may both be set; Mode selects how they
// combine ("any" by default, "all").
type TerminationDefinition struct {
	MaxMessages   int    `yaml:"max_messages"`
	TextMention   string `yaml:"text_mention"`
	CaseSensitive bool   `yaml:"case_sensitive"`
	Mode          string `yaml:"mode"`
}

// OrchestratorConfig is the on-disk shape of a multi-agent orchestration.
type OrchestratorConfig struct {
	Name           string                `yaml:"name"`
	Type           string                `yaml:"type"` // round_robin | ai | plan
	MaxIterations  int                   `yaml:"max_iterations"`
	MaxStepRetries int                   `yaml:"max_step_retries"`
	Termination    TerminationDefinition `yaml:"termination"`
	Agents         []AgentDefinition     `yaml:"agents"`
}

// Validate checks the orchestration definition for construction errors.
func (c *OrchestratorConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("orchestrator config: name is required")
	}
	switch c.Type {
	case "round_robin", "ai", "plan":
	default:
		return fmt.Errorf("orchestrator config %s: unknown type %q", c.Name, c.Type)
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("orchestrator config %s: at least one agent is required", c.Name)
	}
	seen := make(map[string]bool)
	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("orchestrator config %s: agent with empty name", c.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("orchestrator config %s: duplicate agent %q", c.Name, a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// StepDefinition declares one workflow step. The executable behind the id
// is resolved at build time by the caller; definitions carry structure and
// metadata only.
type StepDefinition struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// EdgeDefinition declares one workflow edge.
type EdgeDefinition struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// WorkflowDefinition is the on-disk shape of a workflow DAG.
type WorkflowDefinition struct {
	Name         string           `yaml:"name"`
	Description  string           `yaml:"description"`
	Version      string           `yaml:"version"`
	Steps        []StepDefinition `yaml:"steps"`
	Edges        []EdgeDefinition `yaml:"edges"`
	InitialState map[string]any   `yaml:"initial_state"`
}

// Validate checks the definition's structural shape: unique step ids and
// edges referencing declared steps. Graph-level validation (acyclicity,
// roots, type compatibility) happens when the built workflow validates.
func (d *WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow definition: name is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow definition %s: at least one step is required", d.Name)
	}
	ids := make(map[string]bool)
	for _, s := range d.Steps {
		if s.ID == "" {
			return fmt.Errorf("workflow definition %s: step with empty id", d.Name)
		}
		if ids[s.ID] {
			return fmt.Errorf("workflow definition %s: duplicate step id %q", d.Name, s.ID)
		}
		ids[s.ID] = true
	}
	for _, e := range d.Edges {
		if !ids[e.From] {
			return fmt.Errorf("workflow definition %s: edge from unknown step %q", d.Name, e.From)
		}
		if !ids[e.To] {
			return fmt.Errorf("workflow definition %s: edge to unknown step %q", d.Name, e.To)
		}
	}
	return nil
}

// LoadOrchestrator parses and validates an orchestration definition from
// path.
func LoadOrchestrator(path string) (*OrchestratorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load orchestrator config: %w", err)
	}
	return ParseOrchestrator(data)
}

// ParseOrchestrator parses and validates an orchestration definition from
// raw YAML.
func ParseOrchestrator(data []byte) (*OrchestratorConfig, error) {
	var cfg OrchestratorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse orchestrator config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWorkflow parses and validates a workflow definition from path.
func LoadWorkflow(path string) (*WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load workflow definition: %w", err)
	}
	return ParseWorkflow(data)
}

// ParseWorkflow parses and validates a workflow definition from raw YAML.
func ParseWorkflow(data []byte) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse workflow definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
