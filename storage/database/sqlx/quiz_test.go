package sqlxrepos_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-quiz/core"
	"github.com/trezcool/masomo-quiz/core/quiz"
	sqlxrepos "github.com/trezcool/masomo-quiz/storage/database/sqlx"
	"github.com/trezcool/masomo-quiz/tests"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc   *quiz.Service
	repo  quiz.Repository
	clock *clock
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	clk := &clock{now: time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)}
	repo := sqlxrepos.NewQuizRepository(db)
	svc := quiz.NewService(&core.Config{}, repo, nil, nil, nopLogger{}, clk.Now)
	return &fixture{svc: svc, repo: repo, clock: clk}
}

// createQuiz creates a published quiz of two questions worth 1 point each, scored out of 100.
func (f *fixture) createQuiz(t *testing.T, nq quiz.NewQuiz) (quiz.Quiz, []quiz.Question) {
	t.Helper()
	ctx := context.Background()
	nq.CourseID = "math-101"
	nq.Title = "Algebra"
	nq.MaxScore = 100
	nq.IsPublished = true
	if nq.MaxAttempts == 0 {
		nq.MaxAttempts = 1
	}

	q, err := f.svc.CreateQuiz(ctx, nq, "")
	require.NoError(t, err)

	var questions []quiz.Question
	for i := 0; i < 2; i++ {
		qn, err := f.svc.AddQuestion(ctx, q.ID, quiz.NewQuestion{
			Prompt:    "What is it?",
			Options:   []quiz.NewOption{{Text: "right"}, {Text: "wrong"}},
			AnswerKey: []int{0},
			Points:    1,
		})
		require.NoError(t, err)
		questions = append(questions, qn)
	}
	return q, questions
}

// answers answers the first `right` questions correctly and the others wrong.
func answers(questions []quiz.Question, right int) quiz.Answers {
	a := quiz.Answers{}
	for i, qn := range questions {
		if i < right {
			a[qn.ID] = []string{qn.Options[0].ID}
		} else {
			a[qn.ID] = []string{qn.Options[1].ID}
		}
	}
	return a
}

func (f *fixture) takeAttempt(t *testing.T, quizID, studentID string, questions []quiz.Question, right int) quiz.Attempt {
	t.Helper()
	ctx := context.Background()
	a, err := f.svc.StartAttempt(ctx, quizID, studentID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	a, err = f.svc.SubmitAttempt(ctx, a.ID, studentID, answers(questions, right))
	require.NoError(t, err)
	return a
}

func TestQuizRepository_roundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	from := f.clock.Now()
	q, questions := f.createQuiz(t, quiz.NewQuiz{
		TimeLimit:     intPtr(30),
		PassingScore:  floatPtr(50),
		MaxAttempts:   2,
		AvailableFrom: &from,
	})

	stored, err := f.svc.GetQuiz(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q, stored)

	storedQuestions, err := f.svc.QueryQuestions(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, questions, storedQuestions)

	_, err = f.svc.GetQuiz(ctx, "not-a-uuid")
	assert.Equal(t, quiz.ErrQuizNotFound, errors.Cause(err))
	_, err = f.svc.GetQuiz(ctx, uuid.New().String())
	assert.Equal(t, quiz.ErrQuizNotFound, errors.Cause(err))
}

func TestQuizRepository_StartAttempt_concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q, questions := f.createQuiz(t, quiz.NewQuiz{MaxAttempts: 3})
	studentID := uuid.New().String()

	// one try left
	f.takeAttempt(t, q.ID, studentID, questions, 1)
	f.takeAttempt(t, q.ID, studentID, questions, 2)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		started  []quiz.Attempt
		refusals []error
		failures []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := f.svc.StartAttempt(ctx, q.ID, studentID)
			mu.Lock()
			defer mu.Unlock()
			switch errors.Cause(err) {
			case nil:
				started = append(started, a)
			case quiz.ErrAttemptLimitExceeded:
				refusals = append(refusals, err)
			default:
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, failures)
	require.Len(t, started, 1)
	assert.Len(t, refusals, n-1)
	assert.Equal(t, 3, started[0].Ordinal)

	attempts, err := f.svc.QueryAttempts(ctx, quiz.AttemptFilter{QuizID: q.ID, StudentID: studentID})
	require.NoError(t, err)
	assert.Len(t, attempts, 3)
}

func TestQuizRepository_SubmitAttempt_serialized(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q, questions := f.createQuiz(t, quiz.NewQuiz{MaxAttempts: 2})
	studentID := uuid.New().String()

	t.Run("submit after submit", func(t *testing.T) {
		a := f.takeAttempt(t, q.ID, studentID, questions, 2)
		assert.Equal(t, quiz.StatusGraded, a.Status)

		_, err := f.svc.SubmitAttempt(ctx, a.ID, studentID, answers(questions, 0))
		assert.Equal(t, quiz.ErrAttemptNotSubmittable, errors.Cause(err))

		stored, err := f.svc.GetAttempt(ctx, a.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.Score)
		assert.Equal(t, 100.0, *stored.Score)
		assert.Equal(t, a.SubmittedAt, stored.SubmittedAt)
	})

	t.Run("concurrent submits", func(t *testing.T) {
		a, err := f.svc.StartAttempt(ctx, q.ID, studentID)
		require.NoError(t, err)

		const n = 5
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.svc.SubmitAttempt(ctx, a.ID, studentID, answers(questions, i%3))
			}(i)
		}
		wg.Wait()

		var graded int
		for _, err := range errs {
			if err == nil {
				graded++
				continue
			}
			assert.Equal(t, quiz.ErrAttemptNotSubmittable, errors.Cause(err))
		}
		assert.Equal(t, 1, graded)
	})
}

func TestQuizRepository_TimeOutAttempts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q, _ := f.createQuiz(t, quiz.NewQuiz{TimeLimit: intPtr(30), MaxAttempts: 2})
	untimed, _ := f.createQuiz(t, quiz.NewQuiz{})

	a, err := f.svc.StartAttempt(ctx, q.ID, uuid.New().String())
	require.NoError(t, err)
	other, err := f.svc.StartAttempt(ctx, untimed.ID, uuid.New().String())
	require.NoError(t, err)

	// exactly at the limit
	f.clock.Advance(30 * time.Minute)
	n, err := f.repo.TimeOutAttempts(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	stored, err := f.svc.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusInProgress, stored.Status)

	// one minute past it
	f.clock.Advance(time.Minute)
	n, err = f.repo.TimeOutAttempts(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = f.svc.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusTimedOut, stored.Status)
	assert.Nil(t, stored.SubmittedAt)

	stored, err = f.svc.GetAttempt(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusInProgress, stored.Status)
}

func TestQuizRepository_reports(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q, questions := f.createQuiz(t, quiz.NewQuiz{MaxAttempts: 3, PassingScore: floatPtr(60), SendToGradebook: true})
	ann, bob := uuid.New().String(), uuid.New().String()

	f.takeAttempt(t, q.ID, ann, questions, 2)         // 100
	last := f.takeAttempt(t, q.ID, ann, questions, 1) // 50
	f.takeAttempt(t, q.ID, bob, questions, 0)         // 0

	// a returned attempt still counts, a running one does not
	_, err := f.svc.ReturnAttempt(ctx, last.ID)
	require.NoError(t, err)

	results, err := f.svc.QueryResults(ctx, q.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []quiz.StudentResult{
		{StudentID: ann, Attempts: 2, BestScore: 100, LastScore: 50, Passed: boolPtr(true)},
		{StudentID: bob, Attempts: 1, BestScore: 0, LastScore: 0, Passed: boolPtr(false)},
	}, results)

	_, err = f.svc.StartAttempt(ctx, q.ID, bob)
	require.NoError(t, err)
	results, err = f.svc.QueryResults(ctx, q.ID)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	marks, err := f.svc.QueryMarks(ctx, q.ID)
	require.NoError(t, err)
	byStudent := make(map[string]quiz.Mark, len(marks))
	for _, m := range marks {
		byStudent[m.StudentID] = m
	}
	require.Len(t, byStudent, 2)
	assert.Equal(t, 100.0, byStudent[ann].BestScore)
	assert.Equal(t, 2, byStudent[ann].Attempts)
	assert.Equal(t, "math-101", byStudent[ann].CourseID)
	assert.Equal(t, 0.0, byStudent[bob].BestScore)
	assert.Equal(t, 1, byStudent[bob].Attempts)
}

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }

func boolPtr(b bool) *bool { return &b }
