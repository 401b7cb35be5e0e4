package agent

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Cyclone1070/propagent/internal/tool"
	"gopkg.in/yaml.v3"
)

// fileDefinition is the YAML form of a Definition. Tools are referenced by name.
type fileDefinition struct {
	ID           string   `yaml:"id"`
	Persona      string   `yaml:"persona"`
	Model        string   `yaml:"model"`
	SystemPrompt string   `yaml:"system_prompt"`
	Tools        []string `yaml:"tools"`
	Settings     Settings `yaml:"settings"`
}

type definitionsFile struct {
	Agents []fileDefinition `yaml:"agents"`
}

// LoadDefinitions parses a YAML definitions document and resolves tool names
// against the catalog. Unknown keys are rejected.
//
// Example:
//
//	agents:
//	  - id: collections-strict
//	    persona: collections
//	    tools: [list_overdue_invoices, send_payment_reminder]
//	    settings:
//	      max_iterations: 4
//	      confidence_threshold: 0.9
//	      requires_approval_actions: [send_payment_reminder]
func LoadDefinitions(r io.Reader, catalog map[string]tool.Tool) ([]Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}

	var file definitionsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}

	defs := make([]Definition, 0, len(file.Agents))
	for i, fd := range file.Agents {
		if fd.ID == "" {
			return nil, fmt.Errorf("%w: agents[%d] has no id", ErrInvalidDefinition, i)
		}
		tools, err := resolve(catalog, fd.Tools)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidDefinition, fd.ID, err)
		}
		persona := fd.Persona
		if persona == "" {
			persona = fd.ID
		}
		defs = append(defs, Definition{
			ID:           fd.ID,
			Persona:      persona,
			Model:        fd.Model,
			SystemPrompt: fd.SystemPrompt,
			Tools:        tools,
			Settings:     fd.Settings,
		})
	}
	return defs, nil
}

// Merge overlays definitions onto a base set. An override replaces the base
// definition with the same id or persona; the rest are appended in order.
func Merge(base, overrides []Definition) []Definition {
	out := make([]Definition, 0, len(base)+len(overrides))
	for _, b := range base {
		replaced := false
		for _, o := range overrides {
			if o.ID == b.ID || o.Persona == b.Persona {
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, b)
		}
	}
	return append(out, overrides...)
}
