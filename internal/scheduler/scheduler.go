package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cloudyy74/diconnect-pairup/internal/durable"
	"github.com/cloudyy74/diconnect-pairup/internal/models"
)

const defaultInterval = 24 * time.Hour

type MatchingTrigger interface {
	RunMatching(ctx context.Context, frequency models.MatchingFrequency, instanceID string) (*models.OrchestrationInstance, error)
}

// Scheduler starts the pair-up preparation for every frequency due on the current day.
type Scheduler struct {
	trigger  MatchingTrigger
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func New(trigger MatchingTrigger, interval time.Duration, log *slog.Logger) (*Scheduler, error) {
	if trigger == nil {
		return nil, errors.New("matching trigger cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		trigger:  trigger,
		interval: interval,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// DueFrequencies returns Weekly on Mondays and Monthly on the first day of the month.
func DueFrequencies(t time.Time) []models.MatchingFrequency {
	due := make([]models.MatchingFrequency, 0, 2)
	if t.Weekday() == time.Monday {
		due = append(due, models.FrequencyWeekly)
	}
	if t.Day() == 1 {
		due = append(due, models.FrequencyMonthly)
	}
	return due
}

// InstanceID names the run of a frequency on a day, so repeated ticks on that day
// resolve to the same orchestration instance.
func InstanceID(frequency models.MatchingFrequency, t time.Time) string {
	return frequency.String() + "-" + t.Format(time.DateOnly)
}

// Run ticks once immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("pair-up scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	due := DueFrequencies(now)
	if len(due) == 0 {
		s.log.Debug("no pair-up matching due", slog.String("date", now.Format(time.DateOnly)))
		return
	}

	for _, frequency := range due {
		id := InstanceID(frequency, now)
		inst, err := s.trigger.RunMatching(ctx, frequency, id)
		switch {
		case errors.Is(err, durable.ErrInstanceRunning):
			s.log.Info("pair-up matching already running", slog.String("instance_id", id))
		case err != nil:
			s.log.Error("pair-up matching failed", slog.String("instance_id", id), slog.Any("error", err))
		default:
			s.log.Info("pair-up matching finished", slog.String("instance_id", id), slog.String("status", inst.Status))
		}
	}
}
