package pairup

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/cloudyy74/diconnect-pairup/internal/durable"
	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

type Orchestrators struct {
	log   *slog.Logger
	retry durable.RetryOptions
}

func NewOrchestrators(retry durable.RetryOptions, log *slog.Logger) (*Orchestrators, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Orchestrators{
		log:   log,
		retry: retry,
	}, nil
}

// PreparePairUpMatchesToSend fetches the groups due for the frequency in the input and
// runs one sync-and-send sub-orchestration per group. A failing group does not stop the others.
func (o *Orchestrators) PreparePairUpMatchesToSend(c *durable.Context) (any, error) {
	log := c.Logger(o.log).With(slog.String("instance_id", c.InstanceID()))

	var token string
	if err := c.GetInput(&token); err != nil {
		return nil, err
	}
	frequency, err := models.ParseMatchingFrequency(token)
	if err != nil {
		log.Error("invalid matching frequency", slog.String("frequency", token), slog.Any("error", err))
		return nil, err
	}
	summary := models.PreparationSummary{Frequency: frequency.String()}

	var groups []*models.ResourceGroupEntity
	if err := c.CallActivityWithRetry(GetResourceGroupEntitiesActivity, o.retry, frequency.String(), &groups); err != nil {
		log.Error("failed to get resource groups", slog.String("frequency", summary.Frequency), slog.Any("error", err))
		return nil, err
	}
	if len(groups) == 0 {
		log.Info("no resource groups to pair up", slog.String("frequency", summary.Frequency))
		return summary, nil
	}

	inputs := make([]any, 0, len(groups))
	for _, g := range groups {
		inputs = append(inputs, g)
	}
	errs := c.CallSubOrchestratorsWithRetry(SyncRecipientsAndSendBatchesToQueueOrchestrator, o.retry, inputs)

	var result *multierror.Error
	summary.Groups = len(groups)
	for i, err := range errs {
		if err == nil {
			summary.Succeeded++
			continue
		}
		log.Error("pair-up preparation failed for group",
			slog.String("group_id", groups[i].GroupID),
			slog.String("team_id", groups[i].TeamID),
			slog.Any("error", err),
		)
		summary.FailedGroups = append(summary.FailedGroups, groups[i].RowKey)
		result = multierror.Append(result, fmt.Errorf("group %s: %w", groups[i].RowKey, err))
	}

	log.Info("pair-up preparation finished",
		slog.String("frequency", summary.Frequency),
		slog.Int("groups", summary.Groups),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", len(summary.FailedGroups)),
	)
	if err := result.ErrorOrNil(); err != nil {
		log.Warn("some groups were not prepared", slog.String("errors", err.Error()))
	}
	return summary, nil
}

// SyncRecipientsAndSendBatchesToQueue syncs one group's pair-up members and
// publishes its active users. Failures are logged with the team id and returned.
func (o *Orchestrators) SyncRecipientsAndSendBatchesToQueue(c *durable.Context) (any, error) {
	log := c.Logger(o.log).With(slog.String("instance_id", c.InstanceID()))

	var group models.ResourceGroupEntity
	if err := c.GetInput(&group); err != nil {
		return nil, err
	}

	link, err := ParseTeamLink(group.GroupLink)
	if err != nil {
		log.Error("failed to parse team deep link", slog.String("group_link", group.GroupLink), slog.Any("error", err))
		return nil, backoff.Permanent(err)
	}
	log = log.With(slog.String("team_id", link.TeamID))

	var synced SyncMembersResult
	if err := c.CallActivityWithRetry(SyncPairUpMembersActivity, o.retry, SyncMembersInput{
		TeamID:  link.TeamID,
		GroupID: link.GroupID,
	}, &synced); err != nil {
		log.Error("failed to sync pair-up members", slog.Any("error", err))
		return nil, err
	}

	var users []models.TeamUserMapping
	if err := c.CallActivityWithRetry(GetActivePairUpUsersActivity, o.retry, ActiveUsersInput{
		TeamID:   link.TeamID,
		TeamName: group.GroupName,
	}, &users); err != nil {
		log.Error("failed to get active pair-up users", slog.Any("error", err))
		return nil, err
	}

	if len(users) == 0 {
		log.Info("no active pair-up users")
		return "", nil
	}

	var notificationID string
	if err := c.CallActivityWithRetry(SendPairUpMatchesActivity, o.retry, SendMatchesInput{
		NotificationID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.InstanceID())).String(),
		TeamID:         link.TeamID,
		TeamName:       group.GroupName,
		Users:          users,
	}, &notificationID); err != nil {
		log.Error("failed to send pair-up batch", slog.Any("error", err))
		return nil, err
	}

	log.Info("pair-up batch queued",
		slog.String("notification_id", notificationID),
		slog.Int("users", len(users)),
	)
	return notificationID, nil
}
