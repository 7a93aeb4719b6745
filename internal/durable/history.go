package durable

import (
	"context"
	"errors"
	"time"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

var (
	ErrInstanceNotFound = errors.New("orchestration instance not found")
	ErrInstanceExists   = errors.New("orchestration instance already exists")
	ErrInstanceRunning  = errors.New("orchestration instance is already running")
	ErrInstanceFinished = errors.New("orchestration instance already finished")
	ErrLeaseLost        = errors.New("orchestration lease lost")
	ErrDuplicateEvent   = errors.New("history event already recorded")
	ErrNonDeterministic = errors.New("orchestration diverged from recorded history")
	ErrUnknownName      = errors.New("unknown activity or orchestrator")
	ErrDuplicateName    = errors.New("name already registered")
)

// HistoryStore persists orchestration instances and the ordered outcome of their steps.
//
// Only the lease holder of a RUNNING instance executes it. ClaimInstance grants or
// renews the lease and fails with ErrInstanceRunning while another owner holds an
// unexpired one, or ErrInstanceFinished once the instance is terminal. FinishInstance
// writes the terminal status only for the current holder of a RUNNING instance and
// reports ErrLeaseLost otherwise, so a finished instance is never rewritten.
type HistoryStore interface {
	CreateInstance(ctx context.Context, inst models.OrchestrationInstance) error
	GetInstance(ctx context.Context, instanceID string) (*models.OrchestrationInstance, error)
	ClaimInstance(ctx context.Context, instanceID, owner string, now, until time.Time) error
	FinishInstance(ctx context.Context, inst models.OrchestrationInstance, owner string) error
	ReleaseInstance(ctx context.Context, instanceID, owner string) error
	AppendEvent(ctx context.Context, ev models.HistoryEvent) error
	LoadEvents(ctx context.Context, instanceID string) ([]models.HistoryEvent, error)
}
