package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/Cyclone1070/propagent/internal/engine"
	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/Cyclone1070/propagent/internal/ledger"
	"github.com/Cyclone1070/propagent/internal/workflow"
)

func (r *RunCmd) Execute(_ []string) error {
	ec, err := r.context()
	if err != nil {
		return err
	}

	a, err := r.cli.open(true)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var opts []engine.RunOption
	done := make(chan struct{})
	if !r.Quiet {
		events := make(chan workflow.Event, 16)
		opts = append(opts, engine.WithEvents(events))
		go func() {
			defer close(done)
			printEvents(r.cli.deps.Stderr, events)
		}()
		defer func() {
			close(events)
			<-done
		}()
	}

	d, err := a.service.RunAgent(r.cli.ctx, r.Persona, ec, opts...)
	if err != nil {
		return err
	}
	return writeJSON(r.cli.deps.Stdout, d)
}

// context builds the execution context from the trigger flags.
func (r *RunCmd) context() (execution.Context, error) {
	set := 0
	for _, v := range []string{r.Message, r.Event, r.Scheduled} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return execution.Context{}, errors.New("exactly one of --message, --event or --scheduled is required")
	}

	payload := map[string]any{}
	if r.Payload != "" {
		if err := json.Unmarshal([]byte(r.Payload), &payload); err != nil {
			return execution.Context{}, fmt.Errorf("--payload: %w", err)
		}
	}
	var history []execution.Turn
	if r.History != "" {
		if err := json.Unmarshal([]byte(r.History), &history); err != nil {
			return execution.Context{}, fmt.Errorf("--history: %w", err)
		}
	}

	ec := execution.Context{
		ScopeID:             r.Scope,
		TriggerPayload:      payload,
		ConversationHistory: history,
		ActorID:             r.Actor,
	}
	switch {
	case r.Message != "":
		ec.TriggerType = execution.TriggerChatMessage
		payload[execution.MessageKey] = r.Message
	case r.Event != "":
		ec.TriggerType = execution.TriggerEvent
		payload["name"] = r.Event
	default:
		ec.TriggerType = execution.TriggerScheduled
		payload["name"] = r.Scheduled
	}
	return ec, ec.Validate()
}

func printEvents(w io.Writer, events <-chan workflow.Event) {
	for ev := range events {
		switch e := ev.(type) {
		case workflow.ThinkingEvent:
			fmt.Fprintf(w, "· thinking (iteration %d)\n", e.Iteration)
		case workflow.ToolStartEvent:
			fmt.Fprintf(w, "→ %s\n", e.ToolName)
		case workflow.ToolEndEvent:
			if e.Success {
				fmt.Fprintf(w, "✓ %s (%s)\n", e.ToolName, e.Latency)
			} else {
				fmt.Fprintf(w, "✗ %s: %s\n", e.ToolName, e.Error)
			}
		case workflow.DoneEvent:
			fmt.Fprintf(w, "done: %s\n", e.Reason)
		}
	}
}

func (c *ApproveCmd) Execute(_ []string) error {
	a, err := c.cli.open(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	d, err := a.service.ApproveDecision(c.cli.ctx, c.ID, c.Actor)
	if err != nil {
		return err
	}
	return writeJSON(c.cli.deps.Stdout, d)
}

func (c *RejectCmd) Execute(_ []string) error {
	a, err := c.cli.open(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	d, err := a.service.RejectDecision(c.cli.ctx, c.ID, c.Actor, c.Reason)
	if err != nil {
		return err
	}
	return writeJSON(c.cli.deps.Stdout, d)
}

func (c *ShowCmd) Execute(_ []string) error {
	a, err := c.cli.open(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	d, err := a.service.GetDecision(c.cli.ctx, c.ID)
	if err != nil {
		return err
	}
	action, err := a.service.GetAction(c.cli.ctx, c.ID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	return writeJSON(c.cli.deps.Stdout, struct {
		Decision ledger.Decision      `json:"decision"`
		Action   *ledger.ActionRecord `json:"action,omitempty"`
	}{Decision: d, Action: actionOrNil(action, err)})
}

func actionOrNil(a ledger.ActionRecord, err error) *ledger.ActionRecord {
	if err != nil {
		return nil
	}
	return &a
}

func (c *PendingCmd) Execute(_ []string) error {
	a, err := c.cli.open(false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	pending, err := a.service.ListPending(c.cli.ctx, c.Limit)
	if err != nil {
		return err
	}
	return writeJSON(c.cli.deps.Stdout, pending)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
