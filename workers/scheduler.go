package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// BadgeReconciler awards badges that were missed at award time
type BadgeReconciler interface {
	ReconcileBadges(ctx context.Context) (int, error)
}

// VoteCloser completes votes whose end time has passed
type VoteCloser interface {
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
}

type ScheduleConfig struct {
	BadgeReconcileInterval time.Duration
	VoteCloseInterval      time.Duration
}

// Scheduler runs the periodic maintenance jobs
type Scheduler struct {
	sched gocron.Scheduler
	log   *zap.Logger
}

// NewScheduler registers the jobs; a zero interval disables the job.
// ctx is handed to every job run and should be cancelled before Shutdown.
func NewScheduler(ctx context.Context, cfg ScheduleConfig, badges BadgeReconciler, votes VoteCloser, log *zap.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	s := &Scheduler{sched: sched, log: log}

	if cfg.BadgeReconcileInterval > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.BadgeReconcileInterval),
			gocron.NewTask(func() {
				awarded, err := badges.ReconcileBadges(ctx)
				if err != nil {
					log.Error("badge reconciliation sweep failed", zap.Error(err))
					return
				}
				log.Debug("badge reconciliation sweep finished", zap.Int("awarded", awarded))
			}),
			gocron.WithName("badge-reconcile"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("scheduling badge reconciliation: %w", err)
		}
	}

	if cfg.VoteCloseInterval > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(cfg.VoteCloseInterval),
			gocron.NewTask(func() {
				if _, err := votes.CloseExpired(ctx, time.Now()); err != nil {
					log.Error("closing expired votes failed", zap.Error(err))
				}
			}),
			gocron.WithName("vote-close"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("scheduling vote closing: %w", err)
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.sched.Jobs())))
}

// JobNames lists the registered jobs
func (s *Scheduler) JobNames() []string {
	jobs := s.sched.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
