package quiz

import "time"

// Status is the state of an Attempt.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusGraded     Status = "graded"
	StatusReturned   Status = "returned"
	StatusCancelled  Status = "cancelled"
	// StatusTimedOut is stored once an overdue in-progress attempt is noticed,
	// either when the student starts a new attempt or by the sweep.
	StatusTimedOut Status = "timed_out"
)

var (
	// ConsumingStatuses count against Quiz.MaxAttempts.
	ConsumingStatuses = []Status{StatusSubmitted, StatusGraded, StatusReturned}

	transitions = map[Status][]Status{
		StatusInProgress: {StatusSubmitted, StatusGraded, StatusCancelled, StatusTimedOut},
		StatusSubmitted:  {StatusGraded, StatusReturned},
		StatusGraded:     {StatusReturned},
	}
)

func (s Status) IsValid() bool {
	switch s {
	case StatusInProgress, StatusSubmitted, StatusGraded, StatusReturned, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// IsConsuming reports whether an attempt in this status used up one of the allowed tries.
func (s Status) IsConsuming() bool {
	for _, c := range ConsumingStatuses {
		if s == c {
			return true
		}
	}
	return false
}

// IsScored reports whether an attempt in this status holds a score.
func (s Status) IsScored() bool {
	return s == StatusGraded || s == StatusReturned
}

// CanBecome reports whether an attempt may move from s to next.
func (s Status) CanBecome(next Status) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// IsTimedOut reports whether the attempt ran past the quiz time limit at `now`.
// An attempt is timed out strictly after the limit: submitting at exactly the limit is accepted.
func (a Attempt) IsTimedOut(q Quiz, now time.Time) bool {
	if a.Status == StatusTimedOut {
		return true
	}
	if a.Status != StatusInProgress {
		return false
	}
	deadline, ok := q.Deadline(a.StartedAt)
	return ok && now.After(deadline)
}

// IsOpen reports whether the student can still answer the attempt at `now`.
func (a Attempt) IsOpen(q Quiz, now time.Time) bool {
	return a.Status == StatusInProgress && !a.IsTimedOut(q, now)
}

// transition moves the attempt to `next`, setting the timestamps that go with it.
func (a *Attempt) transition(next Status, now time.Time) error {
	if !a.Status.CanBecome(next) {
		return ErrInvalidTransition
	}
	if next == StatusSubmitted || next == StatusGraded {
		if a.SubmittedAt == nil {
			submitted := now
			a.SubmittedAt = &submitted
		}
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}
