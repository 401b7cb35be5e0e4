// Package agent holds agent definitions and the registry runs look them up in.
package agent

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Cyclone1070/propagent/internal/tool"
)

var (
	ErrUnknownPersona      = errors.New("unknown persona")
	ErrInvalidDefinition   = errors.New("invalid agent definition")
	ErrDuplicateDefinition = errors.New("agent already registered")
)

// Settings are the behavioral knobs of an agent. A nil Temperature leaves the
// model's default in place.
type Settings struct {
	Temperature             *float64 `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens               int      `yaml:"max_tokens" json:"max_tokens"`
	MaxIterations           int      `yaml:"max_iterations" json:"max_iterations"`
	ConfidenceThreshold     float64  `yaml:"confidence_threshold" json:"confidence_threshold"`
	RequiresApprovalActions []string `yaml:"requires_approval_actions" json:"requires_approval_actions"`
}

// RequiresApproval reports whether a call to the named tool always needs human review.
func (s Settings) RequiresApproval(toolName string) bool {
	return slices.Contains(s.RequiresApprovalActions, toolName)
}

func (s Settings) clone() Settings {
	s.RequiresApprovalActions = slices.Clone(s.RequiresApprovalActions)
	if s.Temperature != nil {
		t := *s.Temperature
		s.Temperature = &t
	}
	return s
}

// Definition binds a persona to a prompt, tools and settings.
type Definition struct {
	ID           string
	Persona      string
	Model        string
	SystemPrompt string
	Tools        []tool.Tool
	Settings     Settings
}

// Validate checks the definition's own fields. Tool set checks happen when
// the executor is built.
func (d Definition) Validate() error {
	var errs []string
	if strings.TrimSpace(d.ID) == "" {
		errs = append(errs, "id is required")
	}
	if strings.TrimSpace(d.Persona) == "" {
		errs = append(errs, "persona is required")
	}
	if d.Model == "" {
		errs = append(errs, "model is required")
	}
	s := d.Settings
	if s.MaxIterations <= 0 {
		errs = append(errs, fmt.Sprintf("max_iterations must be positive, got %d", s.MaxIterations))
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Sprintf("confidence_threshold must be within [0,1], got %v", s.ConfidenceThreshold))
	}
	if t := s.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Sprintf("temperature must be within [0,2], got %v", *t))
	}
	if s.MaxTokens < 0 {
		errs = append(errs, fmt.Sprintf("max_tokens must not be negative, got %d", s.MaxTokens))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %s", ErrInvalidDefinition, d.ID, strings.Join(errs, "; "))
	}
	return nil
}

func (d Definition) clone() Definition {
	d.Tools = slices.Clone(d.Tools)
	d.Settings = d.Settings.clone()
	return d
}
