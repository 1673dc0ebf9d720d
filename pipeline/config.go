// Copyright 2025 UMF Platform Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"umf/platform/umf"
)

// ConfigFile is the root structure of a pipeline definition file.
type ConfigFile struct {
	Version   string           `yaml:"version"`
	Pipelines []PipelineConfig `yaml:"pipelines"`
}

// PipelineConfig declares one pipeline and its ordered steps.
type PipelineConfig struct {
	Name        string       `yaml:"name"`
	HealthAware bool         `yaml:"health_aware,omitempty"`
	Steps       []StepConfig `yaml:"steps"`
}

// StepConfig declares one step inside a pipeline definition.
type StepConfig struct {
	Name     string         `yaml:"name"`
	TaskType string         `yaml:"task_type"`
	Params   map[string]any `yaml:"params,omitempty"`
}

// LoadConfigFile reads and parses a pipeline definition file. Environment
// variable references in the file (${VAR} or ${VAR:-default}) are expanded
// before parsing.
func LoadConfigFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var config ConfigFile
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := ValidateConfigFile(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// ValidateConfigFile checks the structure of a parsed definition: a
// version, at least one step per pipeline, task types inside the allowed
// set, and unique step names. Execute repeats the step checks at runtime;
// doing them here surfaces bad files before any adapter is registered.
func ValidateConfigFile(config *ConfigFile) error {
	if config.Version == "" {
		return fmt.Errorf("config file must specify a version")
	}

	for _, pc := range config.Pipelines {
		if pc.Name == "" {
			return fmt.Errorf("every pipeline must have a name")
		}
		if len(pc.Steps) == 0 {
			return fmt.Errorf("pipeline %q has no steps", pc.Name)
		}

		seen := make(map[string]bool, len(pc.Steps))
		for _, sc := range pc.Steps {
			if sc.Name == "" {
				return fmt.Errorf("pipeline %q has a step without a name", pc.Name)
			}
			if seen[sc.Name] {
				return fmt.Errorf("pipeline %q has duplicate step %q", pc.Name, sc.Name)
			}
			seen[sc.Name] = true

			if _, err := umf.ParseTaskType(sc.TaskType); err != nil {
				return fmt.Errorf("pipeline %q step %q: %w", pc.Name, sc.Name, err)
			}
		}
	}

	return nil
}

// FromConfig builds a pipeline from a validated definition. Adapters are
// registered by the caller afterwards.
func FromConfig(pc PipelineConfig, opts ...Option) (*Pipeline, error) {
	if pc.HealthAware {
		opts = append(opts, WithHealthAwareSelection())
	}

	p := New(pc.Name, opts...)
	for _, sc := range pc.Steps {
		task, err := umf.ParseTaskType(sc.TaskType)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q step %q: %w", pc.Name, sc.Name, err)
		}
		p.AddStep(sc.Name, task, sc.Params)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME references.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references, supporting
// ${VAR:-default} fallbacks. Undefined variables expand to the empty
// string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}
