package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cloudyy74/diconnect-pairup/internal/durable"
	"github.com/cloudyy74/diconnect-pairup/internal/models"
	"github.com/cloudyy74/diconnect-pairup/internal/pairup"
)

type OrchestrationRunner interface {
	Run(ctx context.Context, name, instanceID string, input any) (*models.OrchestrationInstance, error)
	GetInstance(ctx context.Context, instanceID string) (*models.OrchestrationInstance, error)
}

// MatchingService starts and inspects pair-up preparation runs.
// Runs started through StartMatching outlive the request and stop on Shutdown.
type MatchingService struct {
	runner OrchestrationRunner
	log    *slog.Logger

	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewMatchingService(runner OrchestrationRunner, log *slog.Logger) (*MatchingService, error) {
	if runner == nil {
		return nil, errors.New("orchestration runner cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &MatchingService{
		runner:   runner,
		log:      log,
		runCtx:   runCtx,
		cancel:   cancel,
		inflight: make(map[string]struct{}),
	}, nil
}

// RunMatching runs the preparation for a frequency to completion. A run that ends
// in failure is returned with its FAILED status rather than as an error.
func (s *MatchingService) RunMatching(ctx context.Context, frequency models.MatchingFrequency, instanceID string) (*models.OrchestrationInstance, error) {
	if !frequency.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrValidation, models.ErrUnknownFrequency)
	}
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	inst, err := s.runner.Run(ctx, pairup.PreparePairUpMatchesToSendOrchestrator, instanceID, frequency.String())
	if err != nil {
		switch {
		case errors.Is(err, durable.ErrInstanceRunning):
			return nil, fmt.Errorf("run matching: %w: %w", ErrMatchingRunning, err)
		case inst != nil && inst.Status == models.InstanceStatusFailed:
			s.log.Warn("matching run failed", slog.String("instance_id", instanceID), slog.Any("error", err))
			return inst, nil
		default:
			return nil, fmt.Errorf("run matching: %w", err)
		}
	}
	return inst, nil
}

// StartMatching launches a preparation run in the background and returns at once.
// A run that already finished is returned as stored instead of being started again.
func (s *MatchingService) StartMatching(ctx context.Context, req *models.MatchingRunRequest) (*models.OrchestrationInstance, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty body", ErrValidation)
	}
	frequency, err := models.ParseMatchingFrequency(req.Frequency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	instanceID := strings.TrimSpace(req.InstanceID)
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	existing, err := s.runner.GetInstance(ctx, instanceID)
	switch {
	case err == nil && existing.Status != models.InstanceStatusRunning:
		return existing, nil
	case err != nil && !errors.Is(err, durable.ErrInstanceNotFound):
		return nil, fmt.Errorf("start matching: %w", err)
	}

	if err := s.track(instanceID); err != nil {
		return nil, err
	}
	go func() {
		defer s.wg.Done()
		defer s.untrack(instanceID)

		inst, err := s.RunMatching(s.runCtx, frequency, instanceID)
		if err != nil {
			s.log.Error("background matching run failed", slog.String("instance_id", instanceID), slog.Any("error", err))
			return
		}
		s.log.Info("background matching run finished", slog.String("instance_id", instanceID), slog.String("status", inst.Status))
	}()

	return &models.OrchestrationInstance{
		ID:     instanceID,
		Name:   pairup.PreparePairUpMatchesToSendOrchestrator,
		Status: models.InstanceStatusRunning,
	}, nil
}

func (s *MatchingService) track(instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx.Err() != nil {
		return errors.New("matching service is shutting down")
	}
	if _, ok := s.inflight[instanceID]; ok {
		return fmt.Errorf("start matching %q: %w", instanceID, ErrMatchingRunning)
	}
	s.inflight[instanceID] = struct{}{}
	s.wg.Add(1)
	return nil
}

func (s *MatchingService) untrack(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, instanceID)
}

// Shutdown cancels background runs and waits for them until ctx ends.
// Cancelled runs stay RUNNING in history and resume on the next start.
func (s *MatchingService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for matching runs: %w", ctx.Err())
	}
}

func (s *MatchingService) GetInstance(ctx context.Context, instanceID string) (*models.OrchestrationInstance, error) {
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return nil, fmt.Errorf("%w: instance_id is required", ErrValidation)
	}
	inst, err := s.runner.GetInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, durable.ErrInstanceNotFound) {
			return nil, fmt.Errorf("get matching run: %w", ErrInstanceNotFound)
		}
		return nil, fmt.Errorf("get matching run: %w", err)
	}
	return inst, nil
}
