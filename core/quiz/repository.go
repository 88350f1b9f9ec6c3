package quiz

import (
	"context"
	"time"

	"github.com/trezcool/masomo-quiz/core"
)

// Repository persists quizzes, their questions, the attempts of students and their marks.
// Lookups of a missing row return the matching not found error.
type Repository interface {
	// WithTx runs fn in a transaction, committed when fn returns nil and rolled back otherwise.
	// fn must only use the Repository it is given. Calling WithTx on it joins the running transaction.
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	CreateQuiz(ctx context.Context, q Quiz) (Quiz, error)
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	QueryQuizzes(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Quiz, error)
	UpdateQuiz(ctx context.Context, q Quiz) (Quiz, error)
	DeleteQuiz(ctx context.Context, id string) error

	CreateQuestion(ctx context.Context, qn Question) (Question, error)
	// QueryQuestions returns the questions of a quiz in definition order.
	QueryQuestions(ctx context.Context, quizID string) ([]Question, error)
	DeleteQuestion(ctx context.Context, quizID, id string) error

	// LockStudentQuiz holds off other transactions locking the same student and quiz until the
	// current transaction ends.
	LockStudentQuiz(ctx context.Context, quizID, studentID string) error
	CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
	// GetAttempt locks the attempt until the current transaction ends when forUpdate is set.
	GetAttempt(ctx context.Context, id string, forUpdate bool) (Attempt, error)
	// QueryAttempts returns the matching attempts, oldest first.
	QueryAttempts(ctx context.Context, filter AttemptFilter) ([]Attempt, error)
	UpdateAttempt(ctx context.Context, a Attempt) (Attempt, error)
	DeleteAttempt(ctx context.Context, id string) error
	// TimeOutAttempts marks as timed out the in-progress attempts that ran past their quiz time limit at `now`.
	TimeOutAttempts(ctx context.Context, now time.Time) (int, error)

	// RecordMark adds a graded attempt to the gradebook: BestScore never decreases and Attempts counts
	// the graded attempts recorded.
	RecordMark(ctx context.Context, m Mark) (Mark, error)
	QueryMarks(ctx context.Context, quizID string) ([]Mark, error)
	// QueryResults aggregates the graded and returned attempts of a quiz per student.
	QueryResults(ctx context.Context, quizID string) ([]StudentResult, error)
}
