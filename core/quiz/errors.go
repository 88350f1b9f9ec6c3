package quiz

import "github.com/pkg/errors"

var (
	// not found
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrAttemptNotFound  = errors.New("attempt not found")

	// starting
	ErrQuizUnavailable      = errors.New("quiz is not available")
	ErrAttemptLimitExceeded = errors.New("maximum number of attempts reached")
	ErrAttemptInProgress    = errors.New("an attempt is already in progress")

	// taking and submitting
	ErrAttemptNotAccessible  = errors.New("attempt is no longer accessible")
	ErrAttemptNotSubmittable = errors.New("attempt cannot be submitted")

	// grading
	ErrUngradableQuiz   = errors.New("quiz has no questions to grade")
	ErrAttemptNotGraded = errors.New("attempt has not been graded")

	ErrInvalidTransition = errors.New("invalid attempt status transition")
)

// IsNotFound reports whether err means a quiz, question or attempt does not exist.
func IsNotFound(err error) bool {
	switch errors.Cause(err) {
	case ErrQuizNotFound, ErrQuestionNotFound, ErrAttemptNotFound:
		return true
	}
	return false
}
