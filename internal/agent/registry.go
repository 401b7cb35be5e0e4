package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Cyclone1070/propagent/internal/tool"
)

// Agent is a registered, immutable definition with its compiled tool set.
type Agent struct {
	def      Definition
	executor *tool.Executor
}

// Definition returns a copy of the registered definition.
func (a *Agent) Definition() Definition {
	return a.def.clone()
}

func (a *Agent) ID() string         { return a.def.ID }
func (a *Agent) Persona() string    { return a.def.Persona }
func (a *Agent) Settings() Settings { return a.def.Settings.clone() }

// Executor returns the tool executor bound to this agent's tool set.
func (a *Agent) Executor() *tool.Executor {
	return a.executor
}

// Defaults fill settings left at zero on registration.
type Defaults struct {
	Model         string
	MaxIterations int
}

// Registry holds agents for the process lifetime. It is built once at
// startup and passed to whatever serves runs.
type Registry struct {
	mu        sync.RWMutex
	defaults  Defaults
	byID      map[string]*Agent
	byPersona map[string]*Agent
}

// NewRegistry creates an empty registry.
func NewRegistry(defaults Defaults) *Registry {
	return &Registry{
		defaults:  defaults,
		byID:      make(map[string]*Agent),
		byPersona: make(map[string]*Agent),
	}
}

// Register validates the definition, compiles its tools and stores a copy.
// IDs and personas must be unique.
func (r *Registry) Register(def Definition) (*Agent, error) {
	def = def.clone()
	if def.Model == "" {
		def.Model = r.defaults.Model
	}
	if def.Settings.MaxIterations == 0 {
		def.Settings.MaxIterations = r.defaults.MaxIterations
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}

	executor, err := tool.NewExecutor(def.Tools...)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidDefinition, def.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[def.ID]; exists {
		return nil, fmt.Errorf("%w: id %q", ErrDuplicateDefinition, def.ID)
	}
	if _, exists := r.byPersona[def.Persona]; exists {
		return nil, fmt.Errorf("%w: persona %q", ErrDuplicateDefinition, def.Persona)
	}

	a := &Agent{def: def, executor: executor}
	r.byID[def.ID] = a
	r.byPersona[def.Persona] = a
	return a, nil
}

// Lookup finds an agent by persona, then by id.
func (r *Registry) Lookup(key string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.byPersona[key]; ok {
		return a, nil
	}
	if a, ok := r.byID[key]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, key)
}

// Personas lists registered personas, sorted.
func (r *Registry) Personas() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byPersona))
	for p := range r.byPersona {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
