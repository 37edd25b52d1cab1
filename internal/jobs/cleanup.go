package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wabridge/bridge-server-go/internal/model"
	"github.com/wabridge/bridge-server-go/internal/whatsapp"
)

// SessionReconciler is the part of the session repository the job needs.
type SessionReconciler interface {
	FindStaleLive(ctx context.Context, before time.Time) ([]model.WhatsAppSession, error)
	MarkDisconnectedIfStale(ctx context.Context, userID string, before time.Time) (bool, error)
}

type CleanupOptions struct {
	Interval         time.Duration
	StaleAfter       time.Duration
	AuthDataDir      string
	ProfileRetention time.Duration
}

// CleanupJob reconciles stored session statuses with the clients actually
// running in this process and prunes old auth profiles.
type CleanupJob struct {
	sessions SessionReconciler
	live     func(userID string) bool
	opts     CleanupOptions
	now      func() time.Time
	done     chan struct{}
}

func NewCleanupJob(sessions SessionReconciler, live func(userID string) bool, opts CleanupOptions) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		live:     live,
		opts:     opts,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.opts.Interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.opts.Interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "stale sessions", j.reconcileSessions)
	if j.opts.AuthDataDir != "" && j.opts.ProfileRetention > 0 {
		j.runCleanup(ctx, "auth profiles", j.pruneProfiles)
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}

// reconcileSessions marks sessions disconnected when the store says they are
// live but no client runs for them here and nothing has touched them lately.
// It assumes this process owns every WhatsApp client.
func (j *CleanupJob) reconcileSessions(ctx context.Context) (int64, error) {
	before := j.now().Add(-j.opts.StaleAfter)
	stale, err := j.sessions.FindStaleLive(ctx, before)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, s := range stale {
		if j.live(s.UserID) {
			continue
		}
		changed, err := j.sessions.MarkDisconnectedIfStale(ctx, s.UserID, before)
		if err != nil {
			log.Warn().Err(err).Str("userId", s.UserID).Msg("failed to reconcile session")
			continue
		}
		if changed {
			count++
		}
	}
	return count, nil
}

// pruneProfiles removes profiles untouched for the retention window. The
// newest profile of a user with a running client is always kept.
func (j *CleanupJob) pruneProfiles(ctx context.Context) (int64, error) {
	profiles, err := whatsapp.ListProfiles(j.opts.AuthDataDir)
	if err != nil {
		return 0, err
	}

	cutoff := j.now().Add(-j.opts.ProfileRetention)
	newest := make(map[string]bool)

	var count int64
	for _, p := range profiles {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}

		// profiles are newest first
		first := !newest[p.UserID]
		newest[p.UserID] = true

		if first && j.live(p.UserID) {
			continue
		}
		if p.ModTime.After(cutoff) {
			continue
		}
		if err := whatsapp.RemoveProfile(p.Path); err != nil {
			log.Warn().Err(err).Str("path", p.Path).Msg("failed to remove auth profile")
			continue
		}
		count++
	}
	return count, nil
}
