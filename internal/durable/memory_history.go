package durable

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

const (
	eventsTable    = "events"
	instancesTable = "instances"
	idIndex        = "id"
	instanceIndex  = "instance"
)

func historySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			eventsTable: {
				Name: eventsTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:   idIndex,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "InstanceID"},
								&memdb.IntFieldIndex{Field: "Seq"},
							},
						},
					},
					instanceIndex: {
						Name:    instanceIndex,
						Indexer: &memdb.StringFieldIndex{Field: "InstanceID"},
					},
				},
			},
			instancesTable: {
				Name: instancesTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
		},
	}
}

// MemoryHistory is a HistoryStore kept in process memory. History does not
// survive a restart, so it suits tests and single-shot CLI runs.
type MemoryHistory struct {
	db *memdb.MemDB
}

func NewMemoryHistory() (*MemoryHistory, error) {
	db, err := memdb.NewMemDB(historySchema())
	if err != nil {
		return nil, fmt.Errorf("create history db: %w", err)
	}
	return &MemoryHistory{db: db}, nil
}

func (h *MemoryHistory) CreateInstance(_ context.Context, inst models.OrchestrationInstance) error {
	txn := h.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(instancesTable, idIndex, inst.ID)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("create instance %q: %w", inst.ID, ErrInstanceExists)
	}
	if err := txn.Insert(instancesTable, &inst); err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	txn.Commit()
	return nil
}

// update applies fn to a copy of the stored instance inside one write transaction.
// memdb serializes write transactions, which makes the check in fn atomic with the write.
func (h *MemoryHistory) update(instanceID string, fn func(inst *models.OrchestrationInstance) error) error {
	txn := h.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(instancesTable, idIndex, instanceID)
	if err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("instance %q: %w", instanceID, ErrInstanceNotFound)
	}
	inst := *raw.(*models.OrchestrationInstance)
	if err := fn(&inst); err != nil {
		return err
	}
	if err := txn.Insert(instancesTable, &inst); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (h *MemoryHistory) ClaimInstance(_ context.Context, instanceID, owner string, now, until time.Time) error {
	err := h.update(instanceID, func(inst *models.OrchestrationInstance) error {
		if inst.Status != models.InstanceStatusRunning {
			return ErrInstanceFinished
		}
		if inst.LeaseOwner != "" && inst.LeaseOwner != owner && !inst.LeaseExpiresAt.Before(now) {
			return ErrInstanceRunning
		}
		inst.LeaseOwner = owner
		inst.LeaseExpiresAt = until
		return nil
	})
	if err != nil {
		return fmt.Errorf("claim instance %q: %w", instanceID, err)
	}
	return nil
}

func (h *MemoryHistory) FinishInstance(_ context.Context, finished models.OrchestrationInstance, owner string) error {
	err := h.update(finished.ID, func(inst *models.OrchestrationInstance) error {
		if inst.Status != models.InstanceStatusRunning || inst.LeaseOwner != owner {
			return ErrLeaseLost
		}
		inst.Status = finished.Status
		inst.Output = finished.Output
		inst.Error = finished.Error
		inst.Permanent = finished.Permanent
		inst.UpdatedAt = finished.UpdatedAt
		inst.LeaseOwner = ""
		inst.LeaseExpiresAt = time.Time{}
		return nil
	})
	if err != nil {
		return fmt.Errorf("finish instance %q: %w", finished.ID, err)
	}
	return nil
}

func (h *MemoryHistory) ReleaseInstance(_ context.Context, instanceID, owner string) error {
	err := h.update(instanceID, func(inst *models.OrchestrationInstance) error {
		if inst.LeaseOwner == owner {
			inst.LeaseOwner = ""
			inst.LeaseExpiresAt = time.Time{}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("release instance %q: %w", instanceID, err)
	}
	return nil
}

func (h *MemoryHistory) GetInstance(_ context.Context, instanceID string) (*models.OrchestrationInstance, error) {
	txn := h.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(instancesTable, idIndex, instanceID)
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("get instance %q: %w", instanceID, ErrInstanceNotFound)
	}
	inst := *raw.(*models.OrchestrationInstance)
	return &inst, nil
}

func (h *MemoryHistory) AppendEvent(_ context.Context, ev models.HistoryEvent) error {
	txn := h.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(eventsTable, idIndex, ev.InstanceID, ev.Seq)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("append event %d: %w", ev.Seq, ErrDuplicateEvent)
	}
	if err := txn.Insert(eventsTable, &ev); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	txn.Commit()
	return nil
}

func (h *MemoryHistory) LoadEvents(_ context.Context, instanceID string) ([]models.HistoryEvent, error) {
	txn := h.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(eventsTable, instanceIndex, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	events := make([]models.HistoryEvent, 0)
	for raw := it.Next(); raw != nil; raw = it.Next() {
		events = append(events, *raw.(*models.HistoryEvent))
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}
