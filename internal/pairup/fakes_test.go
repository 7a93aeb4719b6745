package pairup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeGroupRepo struct {
	getGroupsForMatchingFn func(ctx context.Context, frequency models.MatchingFrequency) ([]*models.ResourceGroupEntity, error)
}

func (f *fakeGroupRepo) GetGroupsForMatching(ctx context.Context, frequency models.MatchingFrequency) ([]*models.ResourceGroupEntity, error) {
	if f.getGroupsForMatchingFn == nil {
		return nil, errors.New("unexpected GetGroupsForMatching call")
	}
	return f.getGroupsForMatchingFn(ctx, frequency)
}

// memMappings is a mapping table keyed by (user, team).
type memMappings struct {
	mu   sync.Mutex
	rows map[[2]string]*models.TeamUserPairUpMappingEntity
}

func newMemMappings(rows ...models.TeamUserPairUpMappingEntity) *memMappings {
	m := &memMappings{rows: make(map[[2]string]*models.TeamUserPairUpMappingEntity)}
	for i := range rows {
		r := rows[i]
		m.rows[[2]string{r.UserObjectID, r.TeamID}] = &r
	}
	return m
}

func (m *memMappings) filter(teamID string, activeOnly bool) []*models.TeamUserPairUpMappingEntity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.TeamUserPairUpMappingEntity, 0)
	for _, r := range m.rows {
		if r.TeamID != teamID || (activeOnly && r.IsPaused) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out
}

func (m *memMappings) GetTeamMappings(_ context.Context, teamID string) ([]*models.TeamUserPairUpMappingEntity, error) {
	return m.filter(teamID, false), nil
}

func (m *memMappings) GetActiveTeamMappings(_ context.Context, teamID string) ([]*models.TeamUserPairUpMappingEntity, error) {
	return m.filter(teamID, true), nil
}

func (m *memMappings) InsertMapping(_ context.Context, userID, teamID string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]string{userID, teamID}
	if _, ok := m.rows[key]; ok {
		return false, nil
	}
	m.rows[key] = &models.TeamUserPairUpMappingEntity{UserObjectID: userID, TeamID: teamID, UpdatedOn: now}
	return true, nil
}

func (m *memMappings) DeleteMapping(_ context.Context, userID, teamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, [2]string{userID, teamID})
	return nil
}

func (m *memMappings) get(userID, teamID string) (*models.TeamUserPairUpMappingEntity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[[2]string{userID, teamID}]
	return r, ok
}

type fakeTxManager struct{}

func (fakeTxManager) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeDirectory struct {
	members    map[string][]models.DirectoryUser
	users      map[string]models.DirectoryUser
	failGroups map[string]bool

	mu        sync.Mutex
	listCalls map[string]int
}

func (f *fakeDirectory) ListGroupMembers(_ context.Context, groupID string) ([]models.DirectoryUser, error) {
	f.mu.Lock()
	if f.listCalls == nil {
		f.listCalls = make(map[string]int)
	}
	f.listCalls[groupID]++
	f.mu.Unlock()

	if f.failGroups[groupID] {
		return nil, errors.New("directory unavailable")
	}
	return f.members[groupID], nil
}

func (f *fakeDirectory) calls(groupID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[groupID]
}

func (f *fakeDirectory) GetUser(_ context.Context, userID string) (*models.DirectoryUser, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, errors.New("user not found")
	}
	return &u, nil
}

type published struct {
	topic   string
	key     string
	payload json.RawMessage
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
	failKeys map[string]bool
}

func (f *fakePublisher) Publish(_ context.Context, topic, key string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKeys[key] {
		return errors.New("broker unavailable")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.messages = append(f.messages, published{topic: topic, key: key, payload: raw})
	return nil
}

func (f *fakePublisher) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.messages))
	copy(out, f.messages)
	return out
}
