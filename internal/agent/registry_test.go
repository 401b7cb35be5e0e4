package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/Cyclone1070/propagent/internal/tool"
	"github.com/Cyclone1070/propagent/internal/tool/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubTool(name string) tool.Tool {
	return tool.Tool{
		Name: name,
		Handler: func(ctx context.Context, in tool.Input, ec execution.Context) (any, error) {
			return name, nil
		},
	}
}

func validDefinition() Definition {
	return Definition{
		ID:           "collections",
		Persona:      "collections",
		SystemPrompt: "collect rent",
		Tools:        []tool.Tool{stubTool("lookup")},
		Settings: Settings{
			ConfidenceThreshold:     0.8,
			RequiresApprovalActions: []string{"terminate_lease"},
		},
	}
}

func TestRegister_AppliesDefaults(t *testing.T) {
	r := NewRegistry(Defaults{Model: "gemini-test", MaxIterations: 5})

	a, err := r.Register(validDefinition())

	require.NoError(t, err)
	def := a.Definition()
	assert.Equal(t, "gemini-test", def.Model)
	assert.Equal(t, 5, def.Settings.MaxIterations)
	assert.Equal(t, []string{"lookup"}, a.Executor().Names())
}

func TestRegister_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Definition)
		want   string
	}{
		{"missing id", func(d *Definition) { d.ID = "" }, "id is required"},
		{"missing persona", func(d *Definition) { d.Persona = " " }, "persona is required"},
		{"threshold above one", func(d *Definition) { d.Settings.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"negative iterations", func(d *Definition) { d.Settings.MaxIterations = -1 }, "max_iterations"},
		{"temperature above two", func(d *Definition) { d.Settings.Temperature = temperature(2.5) }, "temperature"},
		{"duplicate tool", func(d *Definition) { d.Tools = append(d.Tools, stubTool("lookup")) }, "duplicate tool name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(Defaults{Model: "m", MaxIterations: 3})
			def := validDefinition()
			tt.mutate(&def)

			_, err := r.Register(def)

			assert.ErrorIs(t, err, ErrInvalidDefinition)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegister_DuplicateDefinition(t *testing.T) {
	r := NewRegistry(Defaults{Model: "m", MaxIterations: 3})
	_, err := r.Register(validDefinition())
	require.NoError(t, err)

	_, err = r.Register(validDefinition())
	assert.ErrorIs(t, err, ErrDuplicateDefinition)

	other := validDefinition()
	other.ID = "collections-2"
	_, err = r.Register(other)
	assert.ErrorIs(t, err, ErrDuplicateDefinition, "persona must be unique too")
}

func TestRegister_IsolatedFromCaller(t *testing.T) {
	r := NewRegistry(Defaults{Model: "m", MaxIterations: 3})
	def := validDefinition()
	a, err := r.Register(def)
	require.NoError(t, err)

	def.Settings.RequiresApprovalActions[0] = "changed"
	got := a.Settings()
	got.RequiresApprovalActions[0] = "changed again"

	assert.True(t, a.Settings().RequiresApproval("terminate_lease"))
}

func TestRegister_ExplicitZeroTemperature(t *testing.T) {
	r := NewRegistry(Defaults{Model: "m", MaxIterations: 3})
	def := validDefinition()
	def.Settings.Temperature = temperature(0)
	a, err := r.Register(def)
	require.NoError(t, err)

	got := a.Settings()
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.0, *got.Temperature)

	*got.Temperature = 1.5
	assert.Equal(t, 0.0, *a.Settings().Temperature)
}

func TestLookup(t *testing.T) {
	r := NewRegistry(Defaults{Model: "m", MaxIterations: 3})
	def := validDefinition()
	def.ID = "collections-v2"
	_, err := r.Register(def)
	require.NoError(t, err)

	byPersona, err := r.Lookup("collections")
	require.NoError(t, err)
	byID, err := r.Lookup("collections-v2")
	require.NoError(t, err)
	assert.Same(t, byPersona, byID)

	_, err = r.Lookup("legal")
	assert.ErrorIs(t, err, ErrUnknownPersona)
}

func TestBuiltin_RegistersAllPersonas(t *testing.T) {
	catalog := property.NewToolset(property.NewInMemoryStore(), nil).Tools()
	defs, err := Builtin(catalog)
	require.NoError(t, err)

	r := NewRegistry(Defaults{Model: "m", MaxIterations: 3})
	for _, d := range defs {
		_, err := r.Register(d)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"collections", "leasing", "maintenance"}, r.Personas())
	leasing, err := r.Lookup("leasing")
	require.NoError(t, err)
	assert.True(t, leasing.Settings().RequiresApproval(property.TerminateLease))
	assert.False(t, leasing.Settings().RequiresApproval(property.GetLease))
}

func TestBuiltin_MissingTool(t *testing.T) {
	_, err := Builtin(map[string]tool.Tool{})
	assert.ErrorIs(t, err, tool.ErrToolNotFound)
}

func TestLoadDefinitions(t *testing.T) {
	catalog := map[string]tool.Tool{"lookup": stubTool("lookup"), "notify": stubTool("notify")}
	doc := `
agents:
  - id: strict-collections
    persona: collections
    model: gemini-pro
    system_prompt: be strict
    tools: [lookup, notify]
    settings:
      temperature: 0.1
      max_iterations: 4
      confidence_threshold: 0.9
      requires_approval_actions: [notify]
  - id: triage
    tools: [lookup]
`
	defs, err := LoadDefinitions(strings.NewReader(doc), catalog)

	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "collections", defs[0].Persona)
	require.Len(t, defs[0].Tools, 2)
	assert.Equal(t, "lookup", defs[0].Tools[0].Name)
	assert.Equal(t, "notify", defs[0].Tools[1].Name)
	require.NotNil(t, defs[0].Settings.Temperature)
	assert.InDelta(t, 0.1, *defs[0].Settings.Temperature, 1e-9)
	assert.Nil(t, defs[1].Settings.Temperature)
	assert.Equal(t, 0.9, defs[0].Settings.ConfidenceThreshold)
	assert.Equal(t, []string{"notify"}, defs[0].Settings.RequiresApprovalActions)
	assert.Equal(t, "triage", defs[1].Persona, "persona defaults to id")
}

func TestLoadDefinitions_Errors(t *testing.T) {
	catalog := map[string]tool.Tool{"lookup": stubTool("lookup")}
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown tool", "agents:\n  - id: a\n    tools: [missing]\n", "tool not found"},
		{"unknown key", "agents:\n  - id: a\n    prompt: x\n", "field prompt not found"},
		{"missing id", "agents:\n  - persona: a\n", "has no id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDefinitions(strings.NewReader(tt.doc), catalog)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	defs, err := LoadDefinitions(strings.NewReader(""), catalog)
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestMerge(t *testing.T) {
	base := []Definition{{ID: "leasing", Persona: "leasing"}, {ID: "collections", Persona: "collections"}}
	overrides := []Definition{{ID: "strict", Persona: "collections"}, {ID: "triage", Persona: "triage"}}

	merged := Merge(base, overrides)

	ids := make([]string, len(merged))
	for i, d := range merged {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"leasing", "strict", "triage"}, ids)
}
