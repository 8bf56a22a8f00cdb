package matching

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/domain"
)

const cleanupBatch = 500

// SessionIndex is the session store's bookkeeping surface.
type SessionIndex interface {
	ExpiredIDs(ctx context.Context, t time.Time, limit int64) ([]string, error)
	LiveIDs(ctx context.Context, t time.Time, limit int64) ([]string, error)
	Forget(ctx context.Context, id, code string) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	// Rescore aligns a live-set score with the record's remaining lifetime
	// and reports whether the record still exists.
	Rescore(ctx context.Context, id string) (bool, error)
}

// CompletionChecker completes sessions whose candidates are all decided.
type CompletionChecker interface {
	CheckCompletion(ctx context.Context, s *domain.Session) (bool, error)
}

// Cleaner prunes expired sessions from the live index and completes active
// sessions the API did not complete (for example after a failed check).
type Cleaner struct {
	index      SessionIndex
	completion CompletionChecker
	logger     *zap.Logger
	now        func() time.Time
}

// NewCleaner creates a Cleaner.
func NewCleaner(index SessionIndex, completion CompletionChecker, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		index:      index,
		completion: completion,
		logger:     logger.Named("cleanup"),
		now:        time.Now,
	}
}

// Run executes RunOnce every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cleanup loop stopped")
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce performs one cleanup pass.
func (c *Cleaner) RunOnce(ctx context.Context) {
	c.pruneExpired(ctx)
	c.completeFinished(ctx)
}

// pruneExpired removes sessions whose Redis records have expired from the
// live index. A session that still exists had its score go stale and is
// re-scored from its remaining lifetime; it is never extended here.
func (c *Cleaner) pruneExpired(ctx context.Context) {
	ids, err := c.index.ExpiredIDs(ctx, c.now(), cleanupBatch)
	if err != nil {
		c.logger.Warn("list expired sessions", zap.Error(err))
		return
	}

	removed := 0
	for _, id := range ids {
		live, err := c.index.Rescore(ctx, id)
		if err != nil {
			c.logger.Warn("re-score session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if live {
			continue
		}
		if err := c.index.Forget(ctx, id, ""); err != nil {
			c.logger.Warn("forget session", zap.String("session_id", id), zap.Error(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		c.logger.Info("pruned expired sessions", zap.Int("count", removed))
	}
}

func (c *Cleaner) completeFinished(ctx context.Context) {
	if c.completion == nil {
		return
	}
	ids, err := c.index.LiveIDs(ctx, c.now(), cleanupBatch)
	if err != nil {
		c.logger.Warn("list live sessions", zap.Error(err))
		return
	}

	completed := 0
	for _, id := range ids {
		sess, err := c.index.Get(ctx, id)
		if err != nil || sess.Status != domain.StatusActive {
			continue
		}
		done, err := c.completion.CheckCompletion(ctx, sess)
		if err != nil {
			c.logger.Warn("completion check", zap.String("session_id", id), zap.Error(err))
			continue
		}
		if done {
			completed++
		}
	}

	if completed > 0 {
		c.logger.Info("completed finished sessions", zap.Int("count", completed))
	}
}
