package tool

import (
	"context"
	"time"

	"github.com/Cyclone1070/propagent/internal/execution"
)

// Type represents JSON Schema types.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

func (t Type) valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// Schema represents a JSON Schema for tool parameters.
type Schema struct {
	Type        Type               `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
}

// Declaration declares a tool's function signature for the LLM.
type Declaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Parameters  *Schema `json:"parameters,omitempty"`
}

// Field is one accepted input parameter.
type Field struct {
	Name        string
	Type        Type
	Description string
	Required    bool
	Enum        []string
	// Items is the element type when Type is TypeArray.
	Items Type
}

// Input is a validated tool input as decoded from JSON.
// Numbers arrive as json.Number; use Decode to bind it to a struct.
type Input map[string]any

// Handler performs the tool's work. A returned error marks the call failed;
// it never aborts the run.
type Handler func(ctx context.Context, in Input, ec execution.Context) (any, error)

// Tool is a named, schema-described unit of work.
type Tool struct {
	Name        string
	Description string
	Params      []Field
	Handler     Handler
}

// Declaration builds the catalog entry sent to the model.
func (t Tool) Declaration() Declaration {
	return Declaration{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.schema(),
	}
}

func (t Tool) schema() *Schema {
	s := &Schema{Type: TypeObject, Properties: make(map[string]*Schema, len(t.Params))}
	for _, f := range t.Params {
		p := &Schema{Type: f.Type, Description: f.Description, Enum: f.Enum}
		if f.Type == TypeArray {
			items := f.Items
			if items == "" {
				items = TypeString
			}
			p.Items = &Schema{Type: items}
		}
		s.Properties[f.Name] = p
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

// Result is the uniform outcome of one tool execution.
type Result struct {
	Name    string        `json:"name"`
	Input   Input         `json:"input,omitempty"`
	Output  any           `json:"output,omitempty"`
	Error   string        `json:"error,omitempty"`
	Success bool          `json:"success"`
	Latency time.Duration `json:"-"`
}
