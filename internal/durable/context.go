package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

// Context is handed to orchestrators. Every activity or sub-orchestration call is
// a numbered step; steps found in history return their recorded outcome without running.
type Context struct {
	ctx   context.Context
	rt    *Runtime
	inst  *models.OrchestrationInstance
	steps map[int]models.HistoryEvent

	mu         sync.Mutex
	seq        int
	lastReplay int
}

func newContext(ctx context.Context, rt *Runtime, inst *models.OrchestrationInstance, events []models.HistoryEvent) *Context {
	c := &Context{
		ctx:        ctx,
		rt:         rt,
		inst:       inst,
		steps:      make(map[int]models.HistoryEvent, len(events)),
		lastReplay: -1,
	}
	for _, ev := range events {
		c.steps[ev.Seq] = ev
		if ev.Seq > c.lastReplay {
			c.lastReplay = ev.Seq
		}
	}
	return c
}

func (c *Context) Context() context.Context {
	return c.ctx
}

func (c *Context) InstanceID() string {
	return c.inst.ID
}

func (c *Context) GetInput(v any) error {
	if err := json.Unmarshal(c.inst.Input, v); err != nil {
		return fmt.Errorf("decode orchestration input: %w", err)
	}
	return nil
}

// IsReplaying reports whether the orchestrator is still re-running steps that
// already have a recorded outcome.
func (c *Context) IsReplaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq <= c.lastReplay
}

// Logger wraps base so that records are dropped while the orchestrator replays.
func (c *Context) Logger(base *slog.Logger) *slog.Logger {
	return slog.New(&replayHandler{inner: base.Handler(), oc: c})
}

func (c *Context) reserve(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	first := c.seq
	c.seq += n
	return first
}

func (c *Context) CallActivityWithRetry(name string, opts RetryOptions, input, out any) error {
	seq := c.reserve(1)
	raw, err := c.runStep(seq, models.EventKindActivity, name, func() (json.RawMessage, error) {
		return c.callActivity(name, opts, input)
	})
	if err != nil {
		return err
	}
	return decodeResult(raw, out)
}

func (c *Context) CallSubOrchestratorWithRetry(name string, opts RetryOptions, input, out any) error {
	seq := c.reserve(1)
	raw, err := c.runStep(seq, models.EventKindSubOrchestrator, name, func() (json.RawMessage, error) {
		return c.callSubOrchestrator(seq, name, opts, input)
	})
	if err != nil {
		return err
	}
	return decodeResult(raw, out)
}

// CallSubOrchestratorsWithRetry starts one sub-orchestration per input, at most
// the runtime's MaxConcurrency at a time, and waits for all of them.
// The returned slice holds each call's failure, nil on success.
func (c *Context) CallSubOrchestratorsWithRetry(name string, opts RetryOptions, inputs []any) []error {
	first := c.reserve(len(inputs))
	errs := make([]error, len(inputs))

	var g errgroup.Group
	g.SetLimit(c.rt.maxConcurrency)
	for i, input := range inputs {
		seq := first + i
		g.Go(func() error {
			_, errs[i] = c.runStep(seq, models.EventKindSubOrchestrator, name, func() (json.RawMessage, error) {
				return c.callSubOrchestrator(seq, name, opts, input)
			})
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (c *Context) callActivity(name string, opts RetryOptions, input any) (json.RawMessage, error) {
	fn, ok := c.rt.activity(name)
	if !ok {
		return nil, fmt.Errorf("activity %q: %w", name, ErrUnknownName)
	}
	in, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal activity input: %w", err)
	}

	var result json.RawMessage
	err = retry(c.ctx, opts, func() error {
		out, err := fn(c.ctx, in)
		if err != nil {
			c.rt.log.Warn("activity attempt failed",
				slog.String("instance_id", c.inst.ID),
				slog.String("activity", name),
				slog.Any("error", err),
			)
			return err
		}
		raw, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshal activity result: %w", err)
		}
		result = raw
		return nil
	})
	return result, err
}

// callSubOrchestrator gives each attempt of step seq its own child instance.
func (c *Context) callSubOrchestrator(seq int, name string, opts RetryOptions, input any) (json.RawMessage, error) {
	attempt := 0
	var result json.RawMessage
	err := retry(c.ctx, opts, func() error {
		attempt++
		childID := fmt.Sprintf("%s:%d:%d", c.inst.ID, seq, attempt)
		child, err := c.rt.Run(c.ctx, name, childID, input)
		if err != nil {
			return err
		}
		result = child.Output
		return nil
	})
	return result, err
}

func (c *Context) runStep(seq int, kind, name string, exec func() (json.RawMessage, error)) (json.RawMessage, error) {
	if ev, ok := c.steps[seq]; ok {
		if ev.Kind != kind || ev.Name != name {
			return nil, fmt.Errorf("%w: step %d recorded %s %q, got %s %q",
				ErrNonDeterministic, seq, ev.Kind, ev.Name, kind, name)
		}
		if ev.Error != "" {
			return nil, &StepError{Kind: kind, Name: name, Message: ev.Error, err: recordedFailure(ev.Error, ev.Permanent)}
		}
		return ev.Result, nil
	}

	result, err := exec()
	if err != nil && c.ctx.Err() != nil {
		return nil, err
	}

	ev := models.HistoryEvent{
		InstanceID: c.inst.ID,
		Seq:        seq,
		Kind:       kind,
		Name:       name,
		Result:     result,
		RecordedAt: c.rt.now(),
	}
	if err != nil {
		ev.Result = nil
		ev.Error = err.Error()
		ev.Permanent = isPermanent(err)
	}
	if appendErr := c.rt.store.AppendEvent(c.ctx, ev); appendErr != nil {
		return nil, fmt.Errorf("record step %d: %w", seq, appendErr)
	}
	if err != nil {
		return nil, &StepError{Kind: kind, Name: name, Message: ev.Error, err: err}
	}
	return result, nil
}

func decodeResult(raw json.RawMessage, out any) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode step result: %w", err)
	}
	return nil
}

// StepError is the failure of one activity or sub-orchestration step, whether
// it just happened or was replayed from history.
type StepError struct {
	Kind    string
	Name    string
	Message string
	err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Name, e.Message)
}

func (e *StepError) Unwrap() error {
	return e.err
}

// IsStepError reports whether err came out of a failed step.
func IsStepError(err error) bool {
	var se *StepError
	return errors.As(err, &se)
}

type replayHandler struct {
	inner slog.Handler
	oc    *Context
}

func (h *replayHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return !h.oc.IsReplaying() && h.inner.Enabled(ctx, level)
}

func (h *replayHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.oc.IsReplaying() {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *replayHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &replayHandler{inner: h.inner.WithAttrs(attrs), oc: h.oc}
}

func (h *replayHandler) WithGroup(name string) slog.Handler {
	return &replayHandler{inner: h.inner.WithGroup(name), oc: h.oc}
}
