// Package schedulersvc runs the periodic jobs of the API.
package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/masomo-quiz/core"
)

// Sweeper stores as timed out the attempts that ran past their time limit.
type Sweeper interface {
	SweepTimedOut(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  core.Logger
	timeout time.Duration
}

func NewScheduler(conf *core.Config, sweeper Sweeper, logger core.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		sweeper: sweeper,
		logger:  logger,
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(conf.Quiz.SweepSchedule, s.sweep); err != nil {
		return nil, errors.Wrapf(err, "scheduling timeout sweep %q", conf.Quiz.SweepSchedule)
	}
	return s, nil
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.sweeper.SweepTimedOut(ctx)
	if err != nil {
		s.logger.Error(err.Error(), err)
		return
	}
	if n > 0 {
		s.logger.Info(fmt.Sprintf("sweep: %d attempt(s) timed out", n))
	}
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops the scheduler and waits for the running jobs.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
