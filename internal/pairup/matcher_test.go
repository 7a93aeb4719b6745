package pairup

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

func batchOf(n int) models.PairUpBatchMessage {
	b := models.PairUpBatchMessage{PairUpNotificationID: "batch-1", TeamID: "t1", TeamName: "Team"}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("u%d", i)
		b.Users = append(b.Users, models.UserData{UserObjectID: id, UserPrincipalName: id + "@contoso.com", UserGivenName: id})
	}
	return b
}

func TestMatchPairs(t *testing.T) {
	batch := batchOf(5)
	pairs := MatchPairs(batch)
	require.Len(t, pairs, 2)

	seen := map[string]bool{}
	for i, p := range pairs {
		assert.Equal(t, fmt.Sprintf("batch-1-%d", i), p.PairUpNotificationID)
		assert.Equal(t, "t1", p.TeamID)
		assert.Equal(t, "Team", p.TeamName)
		assert.NotEqual(t, p.PairUpUserData.Recipient1.UserObjectID, p.PairUpUserData.Recipient2.UserObjectID)
		for _, u := range []models.UserData{p.PairUpUserData.Recipient1, p.PairUpUserData.Recipient2} {
			assert.False(t, seen[u.UserObjectID], "user %s matched twice", u.UserObjectID)
			seen[u.UserObjectID] = true
		}
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, "u0", batch.Users[0].UserObjectID, "input must not be reordered")
}

func TestMatchPairs_Deterministic(t *testing.T) {
	assert.Equal(t, MatchPairs(batchOf(8)), MatchPairs(batchOf(8)))
}

func TestMatchPairs_TooFewUsers(t *testing.T) {
	assert.Empty(t, MatchPairs(batchOf(0)))
	assert.Empty(t, MatchPairs(batchOf(1)))
}

func TestMatchWorker_HandleBatch(t *testing.T) {
	pub := &fakePublisher{}
	w, err := NewMatchWorker(pub, "pairup-matches", discardLogger)
	require.NoError(t, err)

	raw, err := json.Marshal(batchOf(4))
	require.NoError(t, err)
	require.NoError(t, w.HandleBatch(context.Background(), []byte("t1"), raw))

	sent := pub.sent()
	require.Len(t, sent, 2)
	for _, m := range sent {
		assert.Equal(t, "pairup-matches", m.topic)
		assert.Equal(t, "t1", m.key)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(m.payload, &decoded))
		assert.Contains(t, decoded, "PairUpNotificationId")
		assert.Contains(t, decoded, "TeamId")
		assert.Contains(t, decoded, "TeamName")
		userData, ok := decoded["PairUpUserData"].(map[string]any)
		require.True(t, ok)
		recipient, ok := userData["Recipient1"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, recipient, "UserObjectId")
		assert.Contains(t, recipient, "UserPrincipalName")
		assert.Contains(t, recipient, "UserGivenName")
		assert.Contains(t, userData, "Recipient2")
	}
}

func TestMatchWorker_DropsMalformedBatch(t *testing.T) {
	pub := &fakePublisher{}
	w, err := NewMatchWorker(pub, "pairup-matches", discardLogger)
	require.NoError(t, err)

	require.NoError(t, w.HandleBatch(context.Background(), nil, []byte("{")))
	assert.Empty(t, pub.sent())
}

func TestMatchWorker_PublishFailure(t *testing.T) {
	pub := &fakePublisher{failKeys: map[string]bool{"t1": true}}
	w, err := NewMatchWorker(pub, "pairup-matches", discardLogger)
	require.NoError(t, err)

	raw, err := json.Marshal(batchOf(2))
	require.NoError(t, err)
	require.Error(t, w.HandleBatch(context.Background(), []byte("t1"), raw))
}

func TestNewMatchWorker_Validation(t *testing.T) {
	_, err := NewMatchWorker(nil, "topic", discardLogger)
	require.Error(t, err)
	_, err = NewMatchWorker(&fakePublisher{}, "", discardLogger)
	require.Error(t, err)
}
