package durable

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

func TestMemoryHistory_Instances(t *testing.T) {
	h, err := NewMemoryHistory()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = h.GetInstance(ctx, "missing")
	require.ErrorIs(t, err, ErrInstanceNotFound)

	inst := models.OrchestrationInstance{ID: "i1", Name: "orch", Status: models.InstanceStatusRunning}
	require.NoError(t, h.CreateInstance(ctx, inst))
	require.ErrorIs(t, h.CreateInstance(ctx, inst), ErrInstanceExists)

	got, err := h.GetInstance(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, models.InstanceStatusRunning, got.Status)
}

func TestMemoryHistory_ClaimLease(t *testing.T) {
	h, err := NewMemoryHistory()
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	require.ErrorIs(t, h.ClaimInstance(ctx, "missing", "a", now, now.Add(time.Minute)), ErrInstanceNotFound)

	require.NoError(t, h.CreateInstance(ctx, models.OrchestrationInstance{ID: "i1", Name: "orch", Status: models.InstanceStatusRunning}))
	require.NoError(t, h.ClaimInstance(ctx, "i1", "a", now, now.Add(time.Minute)))

	// renewal by the holder
	require.NoError(t, h.ClaimInstance(ctx, "i1", "a", now.Add(10*time.Second), now.Add(time.Minute+10*time.Second)))

	require.ErrorIs(t, h.ClaimInstance(ctx, "i1", "b", now.Add(30*time.Second), now.Add(2*time.Minute)), ErrInstanceRunning)

	// expired lease is taken over
	later := now.Add(5 * time.Minute)
	require.NoError(t, h.ClaimInstance(ctx, "i1", "b", later, later.Add(time.Minute)))

	got, err := h.GetInstance(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, "b", got.LeaseOwner)

	done := models.OrchestrationInstance{ID: "i1", Status: models.InstanceStatusCompleted, Output: []byte(`1`)}
	require.ErrorIs(t, h.FinishInstance(ctx, done, "a"), ErrLeaseLost)
	require.NoError(t, h.FinishInstance(ctx, done, "b"))

	got, err = h.GetInstance(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, models.InstanceStatusCompleted, got.Status)
	require.Empty(t, got.LeaseOwner)

	require.ErrorIs(t, h.ClaimInstance(ctx, "i1", "b", later, later.Add(time.Minute)), ErrInstanceFinished)
}

func TestMemoryHistory_FinishNeverDowngrades(t *testing.T) {
	h, err := NewMemoryHistory()
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, h.CreateInstance(ctx, models.OrchestrationInstance{ID: "i1", Name: "orch", Status: models.InstanceStatusRunning}))
	require.NoError(t, h.ClaimInstance(ctx, "i1", "a", now, now.Add(time.Minute)))
	require.NoError(t, h.FinishInstance(ctx, models.OrchestrationInstance{ID: "i1", Status: models.InstanceStatusCompleted}, "a"))

	err = h.FinishInstance(ctx, models.OrchestrationInstance{ID: "i1", Status: models.InstanceStatusFailed, Error: "late"}, "a")
	require.ErrorIs(t, err, ErrLeaseLost)

	got, err := h.GetInstance(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, models.InstanceStatusCompleted, got.Status)
	require.Empty(t, got.Error)
}

func TestMemoryHistory_ReleaseInstance(t *testing.T) {
	h, err := NewMemoryHistory()
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, h.CreateInstance(ctx, models.OrchestrationInstance{ID: "i1", Name: "orch", Status: models.InstanceStatusRunning}))
	require.NoError(t, h.ClaimInstance(ctx, "i1", "a", now, now.Add(time.Hour)))

	require.NoError(t, h.ReleaseInstance(ctx, "i1", "b"))
	require.ErrorIs(t, h.ClaimInstance(ctx, "i1", "b", now, now.Add(time.Hour)), ErrInstanceRunning)

	require.NoError(t, h.ReleaseInstance(ctx, "i1", "a"))
	require.NoError(t, h.ClaimInstance(ctx, "i1", "b", now, now.Add(time.Hour)))
}

func TestMemoryHistory_Events(t *testing.T) {
	h, err := NewMemoryHistory()
	require.NoError(t, err)
	ctx := context.Background()

	for _, seq := range []int{2, 0, 1} {
		require.NoError(t, h.AppendEvent(ctx, models.HistoryEvent{InstanceID: "i1", Seq: seq, Kind: models.EventKindActivity, Name: "a"}))
	}
	require.NoError(t, h.AppendEvent(ctx, models.HistoryEvent{InstanceID: "i2", Seq: 0, Kind: models.EventKindActivity, Name: "b"}))

	err = h.AppendEvent(ctx, models.HistoryEvent{InstanceID: "i1", Seq: 1, Kind: models.EventKindActivity, Name: "a"})
	require.ErrorIs(t, err, ErrDuplicateEvent)

	events, err := h.LoadEvents(ctx, "i1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		require.Equal(t, i, ev.Seq)
	}

	events, err = h.LoadEvents(ctx, "unknown")
	require.NoError(t, err)
	require.Empty(t, events)
}
