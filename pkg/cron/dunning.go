package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tightship_backend/pkg/dunning"
)

// NewDunningCron builds the daily dunning sweep: suspend subscriptions whose
// grace deadline has elapsed, then warn those approaching it. The caller
// starts and stops the returned cron.
func NewDunningCron(manager *dunning.Manager, log zerolog.Logger) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc("0 9 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		now := time.Now()

		suspended, err := manager.SweepExpiredGrace(ctx, now)
		if err != nil {
			log.Error().Err(err).Msg("grace period sweep failed")
		} else if suspended > 0 {
			log.Info().Int("suspended", suspended).Msg("grace period sweep complete")
		}

		if err := manager.NotifyApproachingDeadlines(ctx, now); err != nil {
			log.Error().Err(err).Msg("grace deadline notifications failed")
		}
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}
