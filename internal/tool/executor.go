package tool

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

type entry struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Executor resolves tool names against one agent's tool set, validates input,
// and turns every outcome (including handler panics) into a Result.
// Safe for concurrent use once built.
type Executor struct {
	registry map[string]entry
	clock    func() time.Time
}

// NewExecutor compiles the schemas of the given tools.
// Tool names must be unique within the set.
func NewExecutor(tools ...Tool) (*Executor, error) {
	e := &Executor{
		registry: make(map[string]entry, len(tools)),
		clock:    time.Now,
	}
	for _, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: empty name", ErrInvalidTool)
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingHandler, t.Name)
		}
		if _, exists := e.registry[t.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTool, t.Name)
		}
		compiled, err := compile(t)
		if err != nil {
			return nil, err
		}
		e.registry[t.Name] = entry{tool: t, schema: compiled}
	}
	return e, nil
}

// Names returns the tool names, sorted.
func (e *Executor) Names() []string {
	names := make([]string, 0, len(e.registry))
	for name := range e.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns all tool schemas for the LLM, sorted by name.
func (e *Executor) Declarations() []Declaration {
	decls := make([]Declaration, 0, len(e.registry))
	for _, en := range e.registry {
		decls = append(decls, en.tool.Declaration())
	}
	sort.Slice(decls, func(i, j int) bool {
		return decls[i].Name < decls[j].Name
	})
	return decls
}

// Execute runs one tool call. It never returns an error: unknown tools,
// invalid input, handler errors and handler panics all come back as a failed Result.
func (e *Executor) Execute(ctx context.Context, name string, raw map[string]any, ec execution.Context) (res Result) {
	start := e.clock()
	res = Result{Name: name}
	defer func() {
		res.Latency = e.clock().Sub(start)
	}()

	en, ok := e.registry[name]
	if !ok {
		res.Input = raw
		res.Error = fmt.Sprintf("%v: %q", ErrToolNotFound, name)
		return res
	}

	in, err := normalize(raw)
	if err != nil {
		res.Input = raw
		res.Error = fmt.Sprintf("%v: %v", ErrInvalidInput, err)
		return res
	}
	res.Input = in

	if err := en.schema.Validate(map[string]any(in)); err != nil {
		res.Error = fmt.Sprintf("%v: %s", ErrInvalidInput, describe(err))
		return res
	}

	out, err := invoke(ctx, en.tool.Handler, in, ec)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Output = out
	res.Success = true
	return res
}

func invoke(ctx context.Context, h Handler, in Input, ec execution.Context) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(ctx, in, ec)
}
