package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

// ActivityFunc is a unit of side-effecting work. Its result must be JSON-serializable.
type ActivityFunc func(ctx context.Context, input json.RawMessage) (any, error)

// OrchestratorFunc coordinates activities and sub-orchestrations. It is re-executed
// on every resume and must reach the same steps in the same order each time.
type OrchestratorFunc func(ctx *Context) (any, error)

const (
	defaultLeaseTTL       = 30 * time.Second
	defaultMaxConcurrency = 4
)

type Runtime struct {
	store          HistoryStore
	log            *slog.Logger
	now            func() time.Time
	owner          string
	leaseTTL       time.Duration
	maxConcurrency int

	mu            sync.Mutex
	activities    map[string]ActivityFunc
	orchestrators map[string]OrchestratorFunc
	running       map[string]struct{}
}

type Option func(*Runtime)

// LeaseTTL sets how long a claimed instance stays reserved without renewal.
func LeaseTTL(ttl time.Duration) Option {
	return func(r *Runtime) {
		if ttl > 0 {
			r.leaseTTL = ttl
		}
	}
}

// MaxConcurrency caps the sub-orchestrations one fan-out runs at the same time.
func MaxConcurrency(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

func NewRuntime(store HistoryStore, log *slog.Logger, opts ...Option) (*Runtime, error) {
	if store == nil {
		return nil, errors.New("history store cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	r := &Runtime{
		store:          store,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
		owner:          uuid.NewString(),
		leaseTTL:       defaultLeaseTTL,
		maxConcurrency: defaultMaxConcurrency,
		activities:     make(map[string]ActivityFunc),
		orchestrators:  make(map[string]OrchestratorFunc),
		running:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Runtime) RegisterActivity(name string, fn ActivityFunc) error {
	if name == "" || fn == nil {
		return errors.New("activity name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.activities[name]; ok {
		return fmt.Errorf("activity %q: %w", name, ErrDuplicateName)
	}
	r.activities[name] = fn
	return nil
}

func (r *Runtime) RegisterOrchestrator(name string, fn OrchestratorFunc) error {
	if name == "" || fn == nil {
		return errors.New("orchestrator name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orchestrators[name]; ok {
		return fmt.Errorf("orchestrator %q: %w", name, ErrDuplicateName)
	}
	r.orchestrators[name] = fn
	return nil
}

func (r *Runtime) activity(name string) (ActivityFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.activities[name]
	return fn, ok
}

func (r *Runtime) orchestrator(name string) (OrchestratorFunc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, ok := r.orchestrators[name]
	return fn, ok
}

func (r *Runtime) acquire(instanceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[instanceID]; ok {
		return false
	}
	r.running[instanceID] = struct{}{}
	return true
}

func (r *Runtime) release(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.running, instanceID)
}

func (r *Runtime) GetInstance(ctx context.Context, instanceID string) (*models.OrchestrationInstance, error) {
	return r.store.GetInstance(ctx, instanceID)
}

// Run starts the named orchestrator under instanceID or resumes it from its history.
// A completed instance is returned as stored; a failed one returns its recorded failure.
// Another runtime executing the same instance makes Run fail with ErrInstanceRunning.
func (r *Runtime) Run(ctx context.Context, name, instanceID string, input any) (*models.OrchestrationInstance, error) {
	fn, ok := r.orchestrator(name)
	if !ok {
		return nil, fmt.Errorf("orchestrator %q: %w", name, ErrUnknownName)
	}
	if instanceID == "" {
		return nil, errors.New("instance id is required")
	}
	if !r.acquire(instanceID) {
		return nil, fmt.Errorf("instance %q: %w", instanceID, ErrInstanceRunning)
	}
	defer r.release(instanceID)

	inst, err := r.loadOrCreate(ctx, name, instanceID, input)
	if err != nil {
		return nil, err
	}
	if inst.Status != models.InstanceStatusRunning {
		return finished(inst)
	}

	now := r.now()
	if err := r.store.ClaimInstance(ctx, instanceID, r.owner, now, now.Add(r.leaseTTL)); err != nil {
		switch {
		case errors.Is(err, ErrInstanceFinished):
			inst, err := r.store.GetInstance(ctx, instanceID)
			if err != nil {
				return nil, fmt.Errorf("get instance: %w", err)
			}
			return finished(inst)
		case errors.Is(err, ErrInstanceRunning):
			return nil, fmt.Errorf("instance %q: %w", instanceID, ErrInstanceRunning)
		default:
			return nil, fmt.Errorf("claim instance: %w", err)
		}
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopRenewing := r.keepLease(runCtx, cancel, instanceID)

	output, runErr := r.runClaimed(runCtx, inst, fn)
	stopRenewing()

	if runErr != nil && runCtx.Err() != nil {
		// Left RUNNING so a later Run resumes from the recorded steps.
		if err := r.store.ReleaseInstance(context.WithoutCancel(ctx), instanceID, r.owner); err != nil {
			r.log.Warn("failed to release orchestration lease", slog.String("instance_id", instanceID), slog.Any("error", err))
		}
		if cause := context.Cause(runCtx); errors.Is(cause, ErrLeaseLost) {
			return nil, fmt.Errorf("instance %q: %w", instanceID, ErrLeaseLost)
		}
		return inst, runErr
	}

	inst.UpdatedAt = r.now()
	if runErr != nil {
		inst.Status = models.InstanceStatusFailed
		inst.Error = runErr.Error()
		inst.Permanent = isPermanent(runErr)
	} else {
		raw, err := json.Marshal(output)
		if err != nil {
			inst.Status = models.InstanceStatusFailed
			inst.Error = fmt.Sprintf("marshal output: %v", err)
			inst.Permanent = true
			runErr = backoff.Permanent(errors.New(inst.Error))
		} else {
			inst.Status = models.InstanceStatusCompleted
			inst.Output = raw
		}
	}
	if err := r.store.FinishInstance(ctx, *inst, r.owner); err != nil {
		return nil, fmt.Errorf("finish instance: %w", err)
	}
	if runErr != nil {
		return inst, &FailedError{InstanceID: inst.ID, Message: inst.Error, err: runErr}
	}
	return inst, nil
}

func (r *Runtime) runClaimed(ctx context.Context, inst *models.OrchestrationInstance, fn OrchestratorFunc) (any, error) {
	events, err := r.store.LoadEvents(ctx, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return r.execute(newContext(ctx, r, inst, events), fn)
}

// keepLease renews the lease of instanceID until the returned stop is called.
// Losing the lease to another runtime cancels ctx with ErrLeaseLost.
func (r *Runtime) keepLease(ctx context.Context, cancel context.CancelCauseFunc, instanceID string) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.leaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := r.now()
				err := r.store.ClaimInstance(ctx, instanceID, r.owner, now, now.Add(r.leaseTTL))
				switch {
				case err == nil:
				case errors.Is(err, ErrInstanceRunning), errors.Is(err, ErrInstanceFinished):
					r.log.Error("orchestration lease lost", slog.String("instance_id", instanceID), slog.Any("error", err))
					cancel(ErrLeaseLost)
					return
				default:
					r.log.Warn("failed to renew orchestration lease", slog.String("instance_id", instanceID), slog.Any("error", err))
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// finished turns a terminal instance into Run's result.
func finished(inst *models.OrchestrationInstance) (*models.OrchestrationInstance, error) {
	if inst.Status == models.InstanceStatusFailed {
		return inst, &FailedError{InstanceID: inst.ID, Message: inst.Error, err: recordedFailure(inst.Error, inst.Permanent)}
	}
	return inst, nil
}

// recordedFailure rebuilds a stored failure so that permanent ones still stop retries.
func recordedFailure(msg string, permanent bool) error {
	if !permanent {
		return nil
	}
	return backoff.Permanent(errors.New(msg))
}

func (r *Runtime) loadOrCreate(ctx context.Context, name, instanceID string, input any) (*models.OrchestrationInstance, error) {
	inst, err := r.store.GetInstance(ctx, instanceID)
	if err == nil {
		if inst.Name != name {
			return nil, fmt.Errorf("instance %q belongs to %q: %w", instanceID, inst.Name, ErrNonDeterministic)
		}
		return inst, nil
	}
	if !errors.Is(err, ErrInstanceNotFound) {
		return nil, fmt.Errorf("get instance: %w", err)
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}
	now := r.now()
	inst = &models.OrchestrationInstance{
		ID:        instanceID,
		Name:      name,
		Status:    models.InstanceStatusRunning,
		Input:     raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateInstance(ctx, *inst); err != nil {
		if errors.Is(err, ErrInstanceExists) {
			return r.loadOrCreate(ctx, name, instanceID, input)
		}
		return nil, fmt.Errorf("create instance: %w", err)
	}
	r.log.Debug("orchestration started", slog.String("instance_id", instanceID), slog.String("name", name))
	return inst, nil
}

func (r *Runtime) execute(oc *Context, fn OrchestratorFunc) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("orchestrator panicked", slog.String("instance_id", oc.InstanceID()), slog.Any("panic", p))
			err = fmt.Errorf("orchestrator panic: %v", p)
		}
	}()
	return fn(oc)
}

// FailedError reports an orchestration instance that ended in failure.
type FailedError struct {
	InstanceID string
	Message    string
	err        error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("orchestration %s failed: %s", e.InstanceID, e.Message)
}

func (e *FailedError) Unwrap() error {
	return e.err
}
