// Package scheduler fires Aux War phase deadlines. Each war has at most one
// pending one-time job; scheduling again replaces it.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultRunTimeout bounds a single deadline callback.
const DefaultRunTimeout = 30 * time.Second

const (
	kindSubmission = "submission_deadline"
	kindVoting     = "voting_deadline"
)

// Advancer is what a deadline moves forward. auxwar.Engine implements it.
type Advancer interface {
	ExpireSubmissions(ctx context.Context, warID string, round int) error
	ExpireVoting(ctx context.Context, warID string, round int) error
}

type Scheduler struct {
	sched   gocron.Scheduler
	adv     Advancer
	clock   clockwork.Clock
	log     *slog.Logger
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]uuid.UUID
}

// New creates a stopped scheduler driven by clock.
func New(adv Advancer, clock clockwork.Clock, log *slog.Logger) (*Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log = log.With("component", "war_scheduler")

	sched, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLogger(log),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		sched:   sched,
		adv:     adv,
		clock:   clock,
		log:     log,
		timeout: DefaultRunTimeout,
		jobs:    make(map[string]uuid.UUID),
	}, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

// Shutdown stops the scheduler and waits for running callbacks.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

func (s *Scheduler) ScheduleSubmissionDeadline(warID string, round int, at time.Time) {
	s.schedule(kindSubmission, warID, round, at, s.adv.ExpireSubmissions)
}

func (s *Scheduler) ScheduleVotingDeadline(warID string, round int, at time.Time) {
	s.schedule(kindVoting, warID, round, at, s.adv.ExpireVoting)
}

// Cancel drops the war's pending deadline, if any.
func (s *Scheduler) Cancel(warID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(warID)
	delete(s.jobs, warID)
}

// pending reports whether warID has a deadline job registered.
func (s *Scheduler) pending(warID string) bool {
	s.mu.Lock()
	id, ok := s.jobs[warID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	for _, j := range s.sched.Jobs() {
		if j.ID() == id {
			return true
		}
	}
	return false
}

func (s *Scheduler) schedule(
	kind, warID string,
	round int,
	at time.Time,
	fire func(ctx context.Context, warID string, round int) error,
) {
	start := gocron.OneTimeJobStartDateTime(at)
	if !at.After(s.clock.Now()) {
		// gocron rejects start times in the past
		start = gocron.OneTimeJobStartImmediately()
	}

	task := gocron.NewTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := fire(ctx, warID, round); err != nil {
			s.log.Error("deadline handling failed", "kind", kind, "war_id", warID, "round", round, "err", err)
			return
		}
		s.log.Debug("deadline handled", "kind", kind, "war_id", warID, "round", round)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(warID)

	j, err := s.sched.NewJob(
		gocron.OneTimeJob(start),
		task,
		gocron.WithName(kind+":"+warID),
		gocron.WithTags(warID, kind),
	)
	if err != nil {
		s.log.Error("failed to schedule deadline", "kind", kind, "war_id", warID, "round", round, "err", err)
		delete(s.jobs, warID)
		return
	}
	s.jobs[warID] = j.ID()
	s.log.Debug("deadline scheduled", "kind", kind, "war_id", warID, "round", round, "at", at.UTC())
}

func (s *Scheduler) removeLocked(warID string) {
	id, ok := s.jobs[warID]
	if !ok {
		return
	}
	// a one-time job that already ran is gone; that's fine
	_ = s.sched.RemoveJob(id)
}
