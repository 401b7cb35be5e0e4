// Package loop drives a model through bounded think, call tool, observe cycles.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Cyclone1070/propagent/internal/execution"
	"github.com/Cyclone1070/propagent/internal/provider"
	"github.com/Cyclone1070/propagent/internal/tool"
	"github.com/Cyclone1070/propagent/internal/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrAbandoned means the caller's context ended before the run finished.
// An abandoned run has no outcome and must not be recorded.
var ErrAbandoned = errors.New("run abandoned")

// TerminationReason says why the loop stopped.
type TerminationReason string

const (
	ReasonEndTurn       TerminationReason = "end_turn"
	ReasonNoToolCalls   TerminationReason = "no_tool_calls"
	ReasonMaxIterations TerminationReason = "max_iterations"
	ReasonProviderError TerminationReason = "provider_error"
)

// Config is the per-agent configuration of a loop.
type Config struct {
	Model         string
	SystemPrompt  string
	Temperature   *float64
	MaxTokens     int
	MaxIterations int
	// ModelTimeout bounds each model call. Zero means no per-call bound.
	ModelTimeout time.Duration
}

// Outcome is what a finished run produced.
type Outcome struct {
	// Transcript holds every tool call in execution order.
	Transcript []tool.Result
	// Text is the last non-empty text the model produced.
	Text       string
	Usage      provider.Usage
	ModelCalls int
	Latency    time.Duration
	Reason     TerminationReason
	// Err is the model-call failure when Reason is ReasonProviderError.
	Err error
}

const (
	// maxModelAttempts bounds tries per model call. Only retryable provider
	// errors are tried again.
	maxModelAttempts = 2
	// defaultRetryDelay applies when a retryable error carries no retry-after.
	defaultRetryDelay = time.Second
	// maxRetryDelay is the longest retry-after honoured; longer waits fail the call.
	maxRetryDelay = 10 * time.Second
)

var tracer trace.Tracer = otel.Tracer("github.com/Cyclone1070/propagent/internal/workflow/loop")

type Loop struct {
	provider llmProvider
	tools    toolExecutor
	events   chan<- workflow.Event
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewLoop creates a loop for one agent. events may be nil.
func NewLoop(provider llmProvider, tools toolExecutor, events chan<- workflow.Event, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		provider: provider,
		tools:    tools,
		events:   events,
		cfg:      cfg,
		logger:   logger.With("component", "loop"),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Run executes the loop for one execution context. It returns an Outcome for
// every run that reached a termination condition, including provider failures.
// The only errors are ErrAbandoned and an invalid configuration.
func (l *Loop) Run(ctx context.Context, ec execution.Context) (*Outcome, error) {
	if l.cfg.MaxIterations <= 0 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", l.cfg.MaxIterations)
	}

	start := l.now()
	out := &Outcome{}
	messages := initialMessages(ec)
	decls := l.tools.Declarations()

	defer func() {
		l.emit(ctx, workflow.DoneEvent{Reason: string(out.Reason)})
	}()

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAbandoned, err)
		}

		l.emit(ctx, workflow.ThinkingEvent{Iteration: iteration})
		l.logger.Debug("model call", "iteration", iteration, "messages", len(messages))

		resp, err := l.generate(ctx, &provider.Request{
			Model:        l.cfg.Model,
			SystemPrompt: l.cfg.SystemPrompt,
			Tools:        decls,
			Messages:     messages,
			Temperature:  l.cfg.Temperature,
			MaxTokens:    l.cfg.MaxTokens,
		})
		out.ModelCalls = iteration
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", ErrAbandoned, ctxErr)
			}
			out.Reason = ReasonProviderError
			out.Err = err
			out.Latency = l.now().Sub(start)
			return out, nil
		}

		out.Usage.InputTokens += resp.Usage.InputTokens
		out.Usage.OutputTokens += resp.Usage.OutputTokens
		if text := resp.Text(); text != "" {
			out.Text = text
			l.emit(ctx, workflow.TextEvent{Text: text})
		}
		messages = append(messages, provider.Message{Role: provider.RoleAssistant, Blocks: resp.Blocks})

		uses := resp.ToolUses()
		if len(uses) > 0 {
			results := make([]provider.Block, 0, len(uses))
			for _, use := range uses {
				res := l.execute(ctx, use, ec)
				out.Transcript = append(out.Transcript, res)
				results = append(results, provider.ToolResultBlock(provider.ToolResult{
					ToolUseID: use.ID,
					Name:      use.Name,
					Output:    res.Output,
					Error:     res.Error,
				}))
			}
			messages = append(messages, provider.Message{Role: provider.RoleUser, Blocks: results})
		}

		if resp.StopReason == provider.StopEndTurn {
			out.Reason = ReasonEndTurn
			break
		}
		if len(uses) == 0 {
			out.Reason = ReasonNoToolCalls
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAbandoned, err)
	}
	if out.Reason == "" {
		out.Reason = ReasonMaxIterations
	}
	out.Latency = l.now().Sub(start)
	l.logger.Debug("loop finished",
		"reason", out.Reason,
		"model_calls", out.ModelCalls,
		"tool_calls", len(out.Transcript),
	)
	return out, nil
}

func (l *Loop) generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	ctx, span := tracer.Start(ctx, "provider.generate", trace.WithAttributes(
		attribute.String("model", req.Model),
		attribute.Int("messages", len(req.Messages)),
	))
	defer span.End()

	if l.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.ModelTimeout)
		defer cancel()
	}

	var (
		resp *provider.Response
		err  error
	)
	for attempt := 1; ; attempt++ {
		resp, err = l.provider.Generate(ctx, req)
		if err == nil && resp == nil {
			err = &provider.ProviderError{Code: provider.ErrorCodeMalformed, Message: "empty response"}
		}
		if err == nil || attempt == maxModelAttempts {
			break
		}
		delay, ok := retryDelay(ctx, err)
		if !ok {
			break
		}
		span.AddEvent("retry", trace.WithAttributes(
			attribute.String("error", err.Error()),
			attribute.Int64("delay_ms", delay.Milliseconds()),
		))
		l.logger.Debug("retrying model call", "attempt", attempt, "delay", delay, "error", err)
		if l.sleep(ctx, delay) != nil {
			break
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("usage.output_tokens", resp.Usage.OutputTokens),
		attribute.String("stop_reason", string(resp.StopReason)),
	)
	return resp, nil
}

// retryDelay reports how long to wait before trying a failed model call
// again. Non-retryable errors, waits above maxRetryDelay and waits that would
// outlast the call's deadline are not retried.
func retryDelay(ctx context.Context, err error) (time.Duration, bool) {
	if !provider.IsRetryable(err) {
		return 0, false
	}
	delay := defaultRetryDelay
	if d := provider.GetRetryAfter(err); d != nil && *d > 0 {
		delay = *d
	}
	if delay > maxRetryDelay {
		return 0, false
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= delay {
		return 0, false
	}
	return delay, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) execute(ctx context.Context, use provider.ToolUse, ec execution.Context) tool.Result {
	ctx, span := tracer.Start(ctx, "tool.execute", trace.WithAttributes(attribute.String("tool", use.Name)))
	defer span.End()

	l.emit(ctx, workflow.ToolStartEvent{ToolName: use.Name, Input: use.Input})
	res := l.tools.Execute(ctx, use.Name, use.Input, ec)
	l.emit(ctx, workflow.ToolEndEvent{
		ToolName: res.Name,
		Success:  res.Success,
		Error:    res.Error,
		Latency:  res.Latency,
	})

	span.SetAttributes(attribute.Bool("success", res.Success))
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
		l.logger.Debug("tool failed", "tool", use.Name, "error", res.Error)
	} else {
		l.logger.Debug("tool succeeded", "tool", use.Name, "latency", res.Latency)
	}
	return res
}

// emit delivers an event unless nobody listens or the run is cancelled.
func (l *Loop) emit(ctx context.Context, ev workflow.Event) {
	if l.events == nil {
		return
	}
	select {
	case l.events <- ev:
	case <-ctx.Done():
	}
}

// initialMessages turns prior conversation turns plus the synthesized trigger
// turn into the opening message sequence.
func initialMessages(ec execution.Context) []provider.Message {
	messages := make([]provider.Message, 0, len(ec.ConversationHistory)+1)
	for _, turn := range ec.ConversationHistory {
		if turn.Role == execution.RoleAssistant {
			messages = append(messages, provider.AssistantText(turn.Content))
		} else {
			messages = append(messages, provider.UserText(turn.Content))
		}
	}
	return append(messages, provider.UserText(ec.FirstTurn()))
}
