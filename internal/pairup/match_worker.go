package pairup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

// MatchWorker turns consumed pair-up batches into one queue message per matched pair.
type MatchWorker struct {
	publisher  Publisher
	matchTopic string
	log        *slog.Logger
}

func NewMatchWorker(publisher Publisher, matchTopic string, log *slog.Logger) (*MatchWorker, error) {
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	if matchTopic == "" {
		return nil, errors.New("match topic cannot be empty")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &MatchWorker{
		publisher:  publisher,
		matchTopic: matchTopic,
		log:        log,
	}, nil
}

// HandleBatch decodes one batch message and publishes its pairs. Undecodable
// messages are logged and dropped; publish failures are returned so the batch is redelivered.
func (w *MatchWorker) HandleBatch(ctx context.Context, key, value []byte) error {
	var batch models.PairUpBatchMessage
	if err := json.Unmarshal(value, &batch); err != nil {
		w.log.Error("dropping malformed pair-up batch", slog.String("key", string(key)), slog.Any("error", err))
		return nil
	}

	pairs := MatchPairs(batch)
	for _, p := range pairs {
		if err := w.publisher.Publish(ctx, w.matchTopic, batch.TeamID, p); err != nil {
			return fmt.Errorf("publish pair %s: %w", p.PairUpNotificationID, err)
		}
	}

	w.log.Info("pair-up batch matched",
		slog.String("team_id", batch.TeamID),
		slog.String("notification_id", batch.PairUpNotificationID),
		slog.Int("users", len(batch.Users)),
		slog.Int("pairs", len(pairs)),
	)
	return nil
}
