package models

import (
	"encoding/json"
	"time"
)

const (
	InstanceStatusRunning   = "RUNNING"
	InstanceStatusCompleted = "COMPLETED"
	InstanceStatusFailed    = "FAILED"
)

const (
	EventKindActivity        = "ACTIVITY"
	EventKindSubOrchestrator = "SUB_ORCHESTRATOR"
)

// OrchestrationInstance is one run of an orchestrator. Permanent marks a failure that
// retrying cannot fix. The lease fields name the runtime currently executing the instance.
type OrchestrationInstance struct {
	ID        string          `json:"instance_id"`
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Permanent bool            `json:"permanent,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	LeaseOwner     string    `json:"-"`
	LeaseExpiresAt time.Time `json:"-"`
}

// HistoryEvent is the recorded outcome of one orchestration step.
type HistoryEvent struct {
	InstanceID string          `json:"instance_id"`
	Seq        int             `json:"seq"`
	Kind       string          `json:"kind"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Permanent  bool            `json:"permanent,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

type MatchingRunRequest struct {
	Frequency  string `json:"frequency"`
	InstanceID string `json:"instance_id"`
}

type MatchingRunResponse struct {
	Instance OrchestrationInstance `json:"instance"`
}

// PreparationSummary is the output of the outer preparation orchestrator.
type PreparationSummary struct {
	Frequency    string   `json:"frequency"`
	Groups       int      `json:"groups"`
	Succeeded    int      `json:"succeeded"`
	FailedGroups []string `json:"failed_groups,omitempty"`
}
