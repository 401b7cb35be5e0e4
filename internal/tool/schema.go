package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compile checks the tool's fields and compiles them into a validator.
// Runs once, when the tool set is registered.
func compile(t Tool) (*jsonschema.Schema, error) {
	seen := make(map[string]bool, len(t.Params))
	for _, f := range t.Params {
		if f.Name == "" {
			return nil, fmt.Errorf("%w %q: field with empty name", ErrInvalidTool, t.Name)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("%w %q: field %q declared twice", ErrInvalidTool, t.Name, f.Name)
		}
		seen[f.Name] = true
		if !f.Type.valid() {
			return nil, fmt.Errorf("%w %q: field %q has unknown type %q", ErrInvalidTool, t.Name, f.Name, f.Type)
		}
		if f.Type == TypeArray && f.Items != "" && !f.Items.valid() {
			return nil, fmt.Errorf("%w %q: field %q has unknown item type %q", ErrInvalidTool, t.Name, f.Name, f.Items)
		}
	}

	doc, err := json.Marshal(t.schema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %q: %w", t.Name, err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://propagent.local/tools/%s.schema.json", t.Name)
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("load schema for %q: %w", t.Name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name, err)
	}
	return compiled, nil
}

// normalize round-trips raw model arguments through JSON so the validator and
// the handler both see canonical JSON values.
func normalize(raw map[string]any) (Input, error) {
	if raw == nil {
		return Input{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be an object")
	}
	return Input(m), nil
}

// describe flattens a validation error into one line per violated field.
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var lines []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc == "" {
				lines = append(lines, e.Message)
			} else {
				lines = append(lines, fmt.Sprintf("%s: %s", loc, e.Message))
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(lines, "; ")
}
