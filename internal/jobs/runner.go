// Package jobs schedules and runs the saved-search notifier across users.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quorum/internal/logging"
	"quorum/internal/model"
	"quorum/internal/notifier"
)

const (
	SkipAlreadyRunning = "already_running"
	SkipLocked         = "locked"

	AuditActionNotified = "saved_search.notified"
)

type UserJob interface {
	Run(ctx context.Context, userID string) (notifier.Result, error)
}

type Store interface {
	UsersWithSavedSearches(ctx context.Context) ([]string, error)
	AddAuditLog(ctx context.Context, entry model.AuditLog) error
}

// RunSummary aggregates one RunAll pass.
type RunSummary struct {
	Users    int `json:"users"`
	Notified int `json:"notified"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Runner makes sure a user never has two notifier runs in flight.
type Runner struct {
	job         UserJob
	store       Store
	locker      Locker
	concurrency int
	log         *slog.Logger
	// UserTimeout bounds one user's run. Keep it below the lock TTL so a
	// distributed lock cannot expire under a live run.
	UserTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewRunner(job UserJob, store Store, locker Locker, concurrency int, logger *slog.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		job:         job,
		store:       store,
		locker:      locker,
		concurrency: concurrency,
		log:         logger,
		inflight:    map[string]struct{}{},
	}
}

func (r *Runner) RunUser(ctx context.Context, userID string) (notifier.Result, error) {
	r.mu.Lock()
	if _, ok := r.inflight[userID]; ok {
		r.mu.Unlock()
		return notifier.Result{Skipped: SkipAlreadyRunning}, nil
	}
	r.inflight[userID] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.inflight, userID)
		r.mu.Unlock()
	}()

	if r.UserTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.UserTimeout)
		defer cancel()
	}

	if r.locker != nil {
		release, ok, err := r.locker.TryLock(ctx, "saved_search:"+userID)
		if err != nil {
			return notifier.Result{}, err
		}
		if !ok {
			return notifier.Result{Skipped: SkipLocked}, nil
		}
		defer release()
	}

	res, err := r.job.Run(ctx, userID)
	if err != nil {
		return notifier.Result{}, err
	}
	if res.Notified {
		uid, topicID := userID, res.TopicID
		entry := model.AuditLog{
			UserID:     &uid,
			Action:     AuditActionNotified,
			Resource:   "topic",
			ResourceID: &topicID,
			Metadata:   map[string]any{"results": res.Count},
		}
		if err := r.store.AddAuditLog(ctx, entry); err != nil {
			r.log.Warn("audit log failed", "user_id", userID, "error", err)
		}
	}
	return res, nil
}

// RunAll runs every user with saved searches. One user's failure does not
// stop the others; all failures are returned joined.
func (r *Runner) RunAll(ctx context.Context) (RunSummary, error) {
	ids, err := r.store.UsersWithSavedSearches(ctx)
	if err != nil {
		return RunSummary{}, fmt.Errorf("list users with saved searches: %w", err)
	}
	var (
		mu      sync.Mutex
		summary = RunSummary{Users: len(ids)}
		errs    []error
	)
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			res, err := r.RunUser(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Failed++
				errs = append(errs, fmt.Errorf("user %s: %w", id, err))
				r.log.Error("saved search run failed", "user_id", id, "error", err)
			case res.Notified:
				summary.Notified++
			default:
				summary.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()
	return summary, errors.Join(errs...)
}
