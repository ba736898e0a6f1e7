// Package scheduler runs periodic auto-sync for users that opted in.
package scheduler

import (
	"context"
	"sync"
	"time"

	"blogforge/internal/middleware"
	"blogforge/internal/models"
	"blogforge/internal/repository"
)

// SyncFunc runs one reconciliation pass for a user.
type SyncFunc func(ctx context.Context, userID uint) error

// Scheduler periodically triggers Sync for every user with auto-sync
// enabled. A per-user in-progress marker suppresses overlapping runs when a
// sync outlasts its interval.
type Scheduler struct {
	userRepo repository.UserRepository
	sync     SyncFunc
	tick     time.Duration

	mu       sync.Mutex
	running  map[uint]bool
	lastRun  map[uint]time.Time
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(userRepo repository.UserRepository, syncFn SyncFunc) *Scheduler {
	return &Scheduler{
		userRepo: userRepo,
		sync:     syncFn,
		tick:     time.Minute,
		running:  make(map[uint]bool),
		lastRun:  make(map[uint]time.Time),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the ticker loop. Call Stop to shut it down.
func (s *Scheduler) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.runDue()
			}
		}
	}()
	middleware.Logger.Info("auto-sync scheduler started", "tick", s.tick)
}

// Stop terminates the loop and waits for it to exit. In-flight syncs finish
// on their own.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Scheduler) runDue() {
	ctx := context.Background()

	users, err := s.userRepo.List(ctx, 1000, 0)
	if err != nil {
		middleware.Logger.Error("scheduler failed to list users", "error", err)
		return
	}

	for _, user := range users {
		settings, err := s.userRepo.GetSettings(ctx, user.ID)
		if err != nil || !settings.AutoSyncEnabled {
			continue
		}

		interval := time.Duration(settings.SyncIntervalHours) * time.Hour
		if interval <= 0 {
			interval = time.Duration(models.DefaultSyncIntervalHours) * time.Hour
		}

		if !s.claim(user.ID, interval) {
			continue
		}

		go func(userID uint) {
			defer s.release(userID)
			if err := s.sync(ctx, userID); err != nil {
				middleware.Logger.Warn("scheduled sync failed", "user_id", userID, "error", err)
				return
			}
			middleware.Logger.Info("scheduled sync completed", "user_id", userID)
		}(user.ID)
	}
}

// claim marks the user's sync as in progress if it is due and not already
// running.
func (s *Scheduler) claim(userID uint, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running[userID] {
		return false
	}
	if last, ok := s.lastRun[userID]; ok && time.Since(last) < interval {
		return false
	}
	s.running[userID] = true
	s.lastRun[userID] = time.Now()
	return true
}

func (s *Scheduler) release(userID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, userID)
}
