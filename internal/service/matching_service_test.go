package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudyy74/diconnect-pairup/internal/durable"
	"github.com/cloudyy74/diconnect-pairup/internal/models"
	"github.com/cloudyy74/diconnect-pairup/internal/pairup"
)

type fakeRunner struct {
	runFn         func(context.Context, string, string, any) (*models.OrchestrationInstance, error)
	getInstanceFn func(context.Context, string) (*models.OrchestrationInstance, error)
}

func (f *fakeRunner) Run(ctx context.Context, name, instanceID string, input any) (*models.OrchestrationInstance, error) {
	if f.runFn != nil {
		return f.runFn(ctx, name, instanceID, input)
	}
	return &models.OrchestrationInstance{ID: instanceID, Name: name, Status: models.InstanceStatusCompleted}, nil
}

func (f *fakeRunner) GetInstance(ctx context.Context, instanceID string) (*models.OrchestrationInstance, error) {
	if f.getInstanceFn != nil {
		return f.getInstanceFn(ctx, instanceID)
	}
	return nil, durable.ErrInstanceNotFound
}

func TestMatchingService_RunMatching(t *testing.T) {
	var gotName string
	var gotInput any
	runner := &fakeRunner{runFn: func(_ context.Context, name, instanceID string, input any) (*models.OrchestrationInstance, error) {
		gotName, gotInput = name, input
		return &models.OrchestrationInstance{ID: instanceID, Status: models.InstanceStatusCompleted}, nil
	}}
	svc, err := NewMatchingService(runner, testLogger())
	if err != nil {
		t.Fatalf("NewMatchingService: %v", err)
	}

	inst, err := svc.RunMatching(context.Background(), models.FrequencyWeekly, "Weekly-2024-03-04")
	if err != nil {
		t.Fatalf("RunMatching returned err: %v", err)
	}
	if gotName != pairup.PreparePairUpMatchesToSendOrchestrator || gotInput != "Weekly" {
		t.Fatalf("unexpected run %q %v", gotName, gotInput)
	}
	if inst.ID != "Weekly-2024-03-04" {
		t.Fatalf("unexpected instance %#v", inst)
	}

	inst, err = svc.RunMatching(context.Background(), models.FrequencyMonthly, "")
	if err != nil {
		t.Fatalf("RunMatching returned err: %v", err)
	}
	if inst.ID == "" {
		t.Fatalf("expected generated instance id")
	}
}

func TestMatchingService_RunMatching_FailedRunIsReturned(t *testing.T) {
	runner := &fakeRunner{runFn: func(_ context.Context, _, instanceID string, _ any) (*models.OrchestrationInstance, error) {
		return &models.OrchestrationInstance{ID: instanceID, Status: models.InstanceStatusFailed, Error: "boom"}, errors.New("boom")
	}}
	svc, _ := NewMatchingService(runner, testLogger())

	inst, err := svc.RunMatching(context.Background(), models.FrequencyWeekly, "i1")
	if err != nil {
		t.Fatalf("RunMatching returned err: %v", err)
	}
	if inst.Status != models.InstanceStatusFailed {
		t.Fatalf("expected failed instance, got %#v", inst)
	}
}

func TestMatchingService_RunMatching_Running(t *testing.T) {
	runner := &fakeRunner{runFn: func(context.Context, string, string, any) (*models.OrchestrationInstance, error) {
		return nil, durable.ErrInstanceRunning
	}}
	svc, _ := NewMatchingService(runner, testLogger())

	if _, err := svc.RunMatching(context.Background(), models.FrequencyWeekly, "i1"); !errors.Is(err, ErrMatchingRunning) {
		t.Fatalf("expected ErrMatchingRunning, got %v", err)
	}
}

func TestMatchingService_StartMatching_Validation(t *testing.T) {
	svc, _ := NewMatchingService(&fakeRunner{}, testLogger())

	for _, req := range []*models.MatchingRunRequest{nil, {Frequency: "Daily"}} {
		if _, err := svc.StartMatching(context.Background(), req); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation for %#v, got %v", req, err)
		}
	}
}

func TestMatchingService_StartMatching_OutlivesRequest(t *testing.T) {
	started := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan error, 1)
	runner := &fakeRunner{runFn: func(ctx context.Context, _, instanceID string, _ any) (*models.OrchestrationInstance, error) {
		close(started)
		select {
		case <-finish:
		case <-ctx.Done():
		}
		done <- ctx.Err()
		return &models.OrchestrationInstance{ID: instanceID, Status: models.InstanceStatusCompleted}, nil
	}}
	svc, _ := NewMatchingService(runner, testLogger())

	reqCtx, cancelReq := context.WithCancel(context.Background())
	inst, err := svc.StartMatching(reqCtx, &models.MatchingRunRequest{Frequency: "Weekly", InstanceID: "run-1"})
	if err != nil {
		t.Fatalf("StartMatching returned err: %v", err)
	}
	if inst.ID != "run-1" || inst.Status != models.InstanceStatusRunning || inst.Name != pairup.PreparePairUpMatchesToSendOrchestrator {
		t.Fatalf("unexpected instance %#v", inst)
	}
	<-started
	cancelReq()

	if _, err := svc.StartMatching(context.Background(), &models.MatchingRunRequest{Frequency: "Weekly", InstanceID: "run-1"}); !errors.Is(err, ErrMatchingRunning) {
		t.Fatalf("expected ErrMatchingRunning for a run in flight, got %v", err)
	}

	close(finish)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run context was cancelled with the request: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("background run did not finish")
	}
	if err := svc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned err: %v", err)
	}
}

func TestMatchingService_StartMatching_FinishedRunReturned(t *testing.T) {
	runner := &fakeRunner{
		runFn: func(context.Context, string, string, any) (*models.OrchestrationInstance, error) {
			t.Errorf("finished run must not be started again")
			return nil, nil
		},
		getInstanceFn: func(_ context.Context, instanceID string) (*models.OrchestrationInstance, error) {
			return &models.OrchestrationInstance{ID: instanceID, Status: models.InstanceStatusCompleted}, nil
		},
	}
	svc, _ := NewMatchingService(runner, testLogger())

	inst, err := svc.StartMatching(context.Background(), &models.MatchingRunRequest{Frequency: "Weekly", InstanceID: "run-1"})
	if err != nil {
		t.Fatalf("StartMatching returned err: %v", err)
	}
	if inst.Status != models.InstanceStatusCompleted {
		t.Fatalf("expected stored instance, got %#v", inst)
	}
}

func TestMatchingService_ShutdownCancelsRuns(t *testing.T) {
	started := make(chan struct{})
	runner := &fakeRunner{runFn: func(ctx context.Context, _, _ string, _ any) (*models.OrchestrationInstance, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	svc, _ := NewMatchingService(runner, testLogger())

	if _, err := svc.StartMatching(context.Background(), &models.MatchingRunRequest{Frequency: "Weekly"}); err != nil {
		t.Fatalf("StartMatching returned err: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown returned err: %v", err)
	}
	if _, err := svc.StartMatching(context.Background(), &models.MatchingRunRequest{Frequency: "Weekly"}); err == nil {
		t.Fatalf("expected StartMatching to fail after Shutdown")
	}
}

func TestMatchingService_GetInstance(t *testing.T) {
	svc, _ := NewMatchingService(&fakeRunner{}, testLogger())

	if _, err := svc.GetInstance(context.Background(), "missing"); !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}
	if _, err := svc.GetInstance(context.Background(), ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
