package schedulersvc

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-quiz/core"
)

type logRecorder struct {
	infos, errs int32
}

func (l *logRecorder) Debug(string, ...interface{}) {}
func (l *logRecorder) Info(string, ...interface{})  { atomic.AddInt32(&l.infos, 1) }
func (l *logRecorder) Warn(string, ...interface{})  {}
func (l *logRecorder) Error(string, ...interface{}) { atomic.AddInt32(&l.errs, 1) }
func (l *logRecorder) Fatal(string, ...interface{}) {}

type sweeperFunc func(ctx context.Context) (int, error)

func (f sweeperFunc) SweepTimedOut(ctx context.Context) (int, error) { return f(ctx) }

func TestNewScheduler(t *testing.T) {
	conf := &core.Config{Quiz: core.QuizConfig{SweepSchedule: "lol"}}
	_, err := NewScheduler(conf, sweeperFunc(func(context.Context) (int, error) { return 0, nil }), &logRecorder{})
	assert.Error(t, err)

	conf.Quiz.SweepSchedule = "@every 1m"
	s, err := NewScheduler(conf, sweeperFunc(func(context.Context) (int, error) { return 0, nil }), &logRecorder{})
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)
}

func TestScheduler_sweep(t *testing.T) {
	conf := &core.Config{Quiz: core.QuizConfig{SweepSchedule: "@every 1m"}}

	tests := []struct {
		name      string
		n         int
		err       error
		wantInfos int32
		wantErrs  int32
	}{
		{name: "nothing to sweep"},
		{name: "swept", n: 2, wantInfos: 1},
		{name: "failed", err: errors.New("db down"), wantErrs: 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logger := &logRecorder{}
			var calls int
			s, err := NewScheduler(conf, sweeperFunc(func(ctx context.Context) (int, error) {
				calls++
				_, hasDeadline := ctx.Deadline()
				assert.True(t, hasDeadline)
				return tc.n, tc.err
			}), logger)
			require.NoError(t, err)

			s.sweep()
			assert.Equal(t, 1, calls)
			assert.Equal(t, tc.wantInfos, logger.infos)
			assert.Equal(t, tc.wantErrs, logger.errs)
		})
	}
}
