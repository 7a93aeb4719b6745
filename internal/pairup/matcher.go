package pairup

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

// MatchPairs shuffles the batch's users and pairs them two by two. With an odd
// count the last user sits out this round. The shuffle is seeded from the batch id,
// so a redelivered batch produces the same pairs and notification ids.
func MatchPairs(batch models.PairUpBatchMessage) []models.PairUpQueueMessage {
	users := make([]models.UserData, len(batch.Users))
	copy(users, batch.Users)

	h := fnv.New64a()
	_, _ = h.Write([]byte(batch.PairUpNotificationID))
	_, _ = h.Write([]byte(batch.TeamID))
	rnd := rand.New(rand.NewPCG(h.Sum64(), uint64(len(users))))
	rnd.Shuffle(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] })

	pairs := make([]models.PairUpQueueMessage, 0, len(users)/2)
	for i := 0; i+1 < len(users); i += 2 {
		pairs = append(pairs, models.PairUpQueueMessage{
			PairUpNotificationID: fmt.Sprintf("%s-%d", batch.PairUpNotificationID, len(pairs)),
			TeamID:               batch.TeamID,
			TeamName:             batch.TeamName,
			PairUpUserData: models.PairUpUserData{
				Recipient1: users[i],
				Recipient2: users[i+1],
			},
		})
	}
	return pairs
}
