package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-quiz/core"
	"github.com/trezcool/masomo-quiz/core/quiz"
	"github.com/trezcool/masomo-quiz/core/user"
)

func newTestLogger() (*RollbarLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "TEST : ", 0), &core.Config{Env: "TEST"})
	logger.Enable(false)
	return logger, &buf
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger, _ := newTestLogger()
	err := errors.New("boom")
	a := quiz.Attempt{ID: "a1", QuizID: "q1", StudentID: "s1", Ordinal: 2, Status: quiz.StatusGraded}

	tests := []struct {
		name string
		args []interface{}
		want []interface{}
	}{
		{name: "message only", want: []interface{}{"msg"}},
		{name: "error", args: []interface{}{err}, want: []interface{}{"msg", err}},
		{name: "user is not forwarded", args: []interface{}{err, user.User{ID: "u1"}}, want: []interface{}{"msg", err}},
		{
			name: "attempt and extras are merged",
			args: []interface{}{err, a, map[string]interface{}{"source": "sweep"}},
			want: []interface{}{"msg", err, map[string]interface{}{
				"attempt_id": "a1",
				"quiz_id":    "q1",
				"student_id": "s1",
				"ordinal":    2,
				"status":     "graded",
				"source":     "sweep",
			}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, logger.prepare("msg", tc.args))
		})
	}
}

func TestRollbarLogger_print(t *testing.T) {
	logger, buf := newTestLogger()

	logger.Error("recording mark", quiz.Attempt{ID: "a1", Status: quiz.StatusGraded})

	out := buf.String()
	assert.Contains(t, out, "TEST : recording mark")
	assert.Contains(t, out, "attempt_id:a1")
	assert.Contains(t, out, "status:graded")
}
