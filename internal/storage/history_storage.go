package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudyy74/diconnect-pairup/internal/durable"
	"github.com/cloudyy74/diconnect-pairup/internal/models"
	"github.com/cloudyy74/diconnect-pairup/pkg/postgres"
)

// HistoryStorage keeps orchestration instances and their step history in Postgres.
type HistoryStorage struct {
	db  *postgres.Postgres
	log *slog.Logger
}

func NewHistoryStorage(db *postgres.Postgres, log *slog.Logger) (*HistoryStorage, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &HistoryStorage{
		db:  db,
		log: log,
	}, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (s *HistoryStorage) CreateInstance(ctx context.Context, inst models.OrchestrationInstance) error {
	exec := querierFromCtx(ctx, s.db.DB)
	res, err := exec.ExecContext(
		ctx,
		`
insert into orchestration_instances (instance_id, name, status, input, output, error, permanent, created_at, updated_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
on conflict (instance_id) do nothing`,
		inst.ID,
		inst.Name,
		inst.Status,
		nullableJSON(inst.Input),
		nullableJSON(inst.Output),
		inst.Error,
		inst.Permanent,
		inst.CreatedAt,
		inst.UpdatedAt,
	)
	if err != nil {
		s.log.Error("failed to create orchestration instance", slog.Any("error", err), slog.String("instance_id", inst.ID))
		return fmt.Errorf("create orchestration instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create orchestration instance: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("create orchestration instance %q: %w", inst.ID, durable.ErrInstanceExists)
	}
	return nil
}

func (s *HistoryStorage) GetInstance(ctx context.Context, instanceID string) (*models.OrchestrationInstance, error) {
	exec := querierFromCtx(ctx, s.db.DB)
	var (
		inst          models.OrchestrationInstance
		input, output []byte
		leaseExpires  sql.NullTime
	)
	err := exec.QueryRowContext(
		ctx,
		`
select instance_id, name, status, input, output, error, permanent, lease_owner, lease_expires_at, created_at, updated_at
from orchestration_instances
where instance_id = $1`,
		instanceID,
	).Scan(
		&inst.ID,
		&inst.Name,
		&inst.Status,
		&input,
		&output,
		&inst.Error,
		&inst.Permanent,
		&inst.LeaseOwner,
		&leaseExpires,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get orchestration instance: %w", durable.ErrInstanceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get orchestration instance: %w", err)
	}
	inst.Input = input
	inst.Output = output
	inst.LeaseExpiresAt = leaseExpires.Time
	return &inst, nil
}

// ClaimInstance takes the lease of a RUNNING instance when it is free, expired or already owned by owner.
func (s *HistoryStorage) ClaimInstance(ctx context.Context, instanceID, owner string, now, until time.Time) error {
	exec := querierFromCtx(ctx, s.db.DB)
	res, err := exec.ExecContext(
		ctx,
		`
update orchestration_instances
set lease_owner = $2, lease_expires_at = $3
where instance_id = $1
and status = 'RUNNING'
and (lease_owner = '' or lease_owner = $2 or lease_expires_at is null or lease_expires_at < $4)`,
		instanceID,
		owner,
		until,
		now,
	)
	if err != nil {
		s.log.Error("failed to claim orchestration instance", slog.Any("error", err), slog.String("instance_id", instanceID))
		return fmt.Errorf("claim orchestration instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim orchestration instance: %w", err)
	}
	if n == 1 {
		return nil
	}

	var status string
	err = exec.QueryRowContext(
		ctx,
		`select status from orchestration_instances where instance_id = $1`,
		instanceID,
	).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("claim orchestration instance %q: %w", instanceID, durable.ErrInstanceNotFound)
	case err != nil:
		return fmt.Errorf("claim orchestration instance: %w", err)
	case status != models.InstanceStatusRunning:
		return fmt.Errorf("claim orchestration instance %q: %w", instanceID, durable.ErrInstanceFinished)
	default:
		return fmt.Errorf("claim orchestration instance %q: %w", instanceID, durable.ErrInstanceRunning)
	}
}

// FinishInstance records the outcome only while owner still holds the lease of a RUNNING instance.
func (s *HistoryStorage) FinishInstance(ctx context.Context, inst models.OrchestrationInstance, owner string) error {
	exec := querierFromCtx(ctx, s.db.DB)
	res, err := exec.ExecContext(
		ctx,
		`
update orchestration_instances
set status = $3, output = $4, error = $5, permanent = $6, updated_at = $7, lease_owner = '', lease_expires_at = null
where instance_id = $1
and status = 'RUNNING'
and lease_owner = $2`,
		inst.ID,
		owner,
		inst.Status,
		nullableJSON(inst.Output),
		inst.Error,
		inst.Permanent,
		inst.UpdatedAt,
	)
	if err != nil {
		s.log.Error("failed to finish orchestration instance", slog.Any("error", err), slog.String("instance_id", inst.ID))
		return fmt.Errorf("finish orchestration instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish orchestration instance: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish orchestration instance %q: %w", inst.ID, durable.ErrLeaseLost)
	}
	return nil
}

func (s *HistoryStorage) ReleaseInstance(ctx context.Context, instanceID, owner string) error {
	exec := querierFromCtx(ctx, s.db.DB)
	_, err := exec.ExecContext(
		ctx,
		`
update orchestration_instances
set lease_owner = '', lease_expires_at = null
where instance_id = $1 and lease_owner = $2`,
		instanceID,
		owner,
	)
	if err != nil {
		return fmt.Errorf("release orchestration instance: %w", err)
	}
	return nil
}

func (s *HistoryStorage) AppendEvent(ctx context.Context, ev models.HistoryEvent) error {
	exec := querierFromCtx(ctx, s.db.DB)
	_, err := exec.ExecContext(
		ctx,
		`
insert into orchestration_events (instance_id, seq, kind, name, result, error, permanent, recorded_at)
values ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.InstanceID,
		ev.Seq,
		ev.Kind,
		ev.Name,
		nullableJSON(ev.Result),
		ev.Error,
		ev.Permanent,
		ev.RecordedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("append history event %d: %w", ev.Seq, durable.ErrDuplicateEvent)
		}
		s.log.Error("failed to append history event", slog.Any("error", err), slog.String("instance_id", ev.InstanceID), slog.Int("seq", ev.Seq))
		return fmt.Errorf("append history event: %w", err)
	}
	return nil
}

func (s *HistoryStorage) LoadEvents(ctx context.Context, instanceID string) ([]models.HistoryEvent, error) {
	exec := querierFromCtx(ctx, s.db.DB)
	rows, err := exec.QueryContext(
		ctx,
		`
select instance_id, seq, kind, name, result, error, permanent, recorded_at
from orchestration_events
where instance_id = $1
order by seq`,
		instanceID,
	)
	if err != nil {
		s.log.Error("failed to load history events", slog.Any("error", err), slog.String("instance_id", instanceID))
		return nil, fmt.Errorf("load history events: %w", err)
	}
	defer rows.Close()

	events := make([]models.HistoryEvent, 0)
	for rows.Next() {
		var (
			ev     models.HistoryEvent
			result []byte
		)
		if err := rows.Scan(&ev.InstanceID, &ev.Seq, &ev.Kind, &ev.Name, &result, &ev.Error, &ev.Permanent, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan history event: %w", err)
		}
		ev.Result = result
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history events: %w", err)
	}
	return events, nil
}
