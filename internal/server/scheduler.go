package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/resumechat/resumechat/internal/store"
)

// Sweeper marks chat sessions idle past the configured cutoff. Messages and
// summaries stay put; a later turn on the session reactivates it.
type Sweeper struct {
	Store  *store.Store
	Rdb    *redis.Client
	Cron   string
	Idle   time.Duration
	Stop   chan struct{}
	Logger *log.Logger

	lastRun time.Time
}

func (s *Sweeper) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SWEEP] ", log.LstdFlags)
	}
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Sweeper) tick() {
	if !isDue(s.Cron, s.lastRun) {
		return
	}
	ctx := context.Background()

	// distributed lock so only one instance sweeps
	if s.Rdb != nil {
		ok, _ := s.Rdb.SetNX(ctx, "sweep:lock", "1", 2*time.Minute).Result()
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, "sweep:lock")
	}
	s.lastRun = time.Now()

	idle := s.Idle
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	ids, err := s.Store.ListIdleSessionIDs(ctx, time.Now().Add(-idle))
	if err != nil {
		s.Logger.Printf("list idle sessions: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	n, err := s.Store.MarkSessionsIdle(ctx, ids)
	if err != nil {
		s.Logger.Printf("mark idle sessions: %v", err)
		return
	}
	s.Logger.Printf("marked %d sessions idle", n)
}

// isDue reports whether the cron spec fires between last and now. Supports
// "@hourly", "@daily", and standard 5-field cron expressions.
func isDue(cronSpec string, last time.Time) bool {
	now := time.Now()
	if last.IsZero() {
		return true
	}
	switch cronSpec {
	case "@daily":
		return now.Sub(last) >= 24*time.Hour
	case "@hourly", "":
		return now.Sub(last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			return now.Sub(last) >= time.Hour
		}
		return !expr.Next(last).After(now)
	}
}
