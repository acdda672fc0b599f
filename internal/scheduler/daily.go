// Package scheduler drives the daily leaderboard archive+reset cycle
// from a wall-clock poll.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stonkstreet/stonkstreet/internal/market"
	"github.com/stonkstreet/stonkstreet/internal/store"
)

// markerKey persists the exchange date of the last performed reset so a
// process restart neither duplicates nor misses a reset within the same
// day.
const markerKey = "leaderboard:last_reset"

// The archive fires at 00:01 exchange time, one minute past the day
// boundary.
const (
	resetHour   = 0
	resetMinute = 1
)

// Archiver snapshots and clears the live leaderboard.
type Archiver interface {
	ArchiveAndClear(ctx context.Context, dateKey string) error
}

// Daily polls the clock once per interval and performs the archive
// exactly once per exchange day. A process that sleeps through the
// 00:01 window skips that day's reset: the marker is only ever compared
// against today, never against a backlog of missed dates.
type Daily struct {
	store    store.Store
	session  *market.Session
	archiver Archiver
	interval time.Duration
}

// NewDaily builds the scheduler with the standard one-minute poll.
func NewDaily(st store.Store, session *market.Session, archiver Archiver) *Daily {
	return &Daily{
		store:    st,
		session:  session,
		archiver: archiver,
		interval: time.Minute,
	}
}

// Run polls until ctx is done.
func (d *Daily) Run(ctx context.Context) error {
	log.Info().Dur("interval", d.interval).Msg("daily reset scheduler started")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("daily reset scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick runs one poll. Exported so tests can drive the schedule without
// waiting on the ticker.
func (d *Daily) Tick(ctx context.Context) {
	now := d.session.Now()
	local := d.session.Local(now)

	if local.Hour() != resetHour || local.Minute() != resetMinute {
		return
	}

	today := d.session.DateAt(now)
	marker, found, err := d.store.Get(ctx, markerKey)
	if err != nil {
		log.Error().Err(err).Msg("failed to read reset marker")
		return
	}
	if found && string(marker) == today {
		return
	}

	yesterday := d.session.DateAt(now.AddDate(0, 0, -1))
	if err := d.archiver.ArchiveAndClear(ctx, yesterday); err != nil {
		log.Error().Err(err).Str("date", yesterday).Msg("daily archive failed")
		return
	}
	if err := d.store.Set(ctx, markerKey, []byte(today)); err != nil {
		log.Error().Err(err).Msg("failed to persist reset marker")
		return
	}

	log.Info().Str("archived", yesterday).Str("marker", today).Msg("daily leaderboard reset complete")
}
