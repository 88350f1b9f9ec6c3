package quiz

import (
	"hash/fnv"
	"math/rand"
)

// Sequence yields the questions of an attempt in the order the student sees them.
// The order only depends on the attempt ID and the quiz settings, so the same attempt
// always gets the same sequence.
type Sequence struct {
	questions []Question
	pos       int
}

// NewSequence orders `questions` (given in definition order) for the attempt.
// Answer keys are stripped.
func NewSequence(q Quiz, attemptID string, questions []Question) *Sequence {
	ordered := make([]Question, len(questions))
	for i, qn := range questions {
		qn.AnswerKey = nil
		qn.Options = append([]Option(nil), qn.Options...)
		ordered[i] = qn
	}

	if q.RandomizeQs {
		rnd := seededRand(attemptID)
		rnd.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
	}
	if q.RandomizeAnswers {
		for i := range ordered {
			opts := ordered[i].Options
			rnd := seededRand(attemptID + ":" + ordered[i].ID)
			rnd.Shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
		}
	}
	return &Sequence{questions: ordered}
}

// Next returns the next question, or false once the sequence is exhausted.
func (s *Sequence) Next() (Question, bool) {
	if s.pos >= len(s.questions) {
		return Question{}, false
	}
	qn := s.questions[s.pos]
	s.pos++
	return qn, true
}

// Reset rewinds the sequence to its first question.
func (s *Sequence) Reset() { s.pos = 0 }

func (s *Sequence) Len() int { return len(s.questions) }

// All returns every question of the sequence, from the start.
func (s *Sequence) All() []Question {
	all := make([]Question, len(s.questions))
	copy(all, s.questions)
	return all
}

func seededRand(key string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}
