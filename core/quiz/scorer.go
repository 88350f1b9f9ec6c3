package quiz

import (
	"math"
	"sort"
)

// Grade is the outcome of grading a set of answers.
type Grade struct {
	Score    float64
	MaxScore float64
	Earned   float64
	Total    float64
	Passed   *bool // nil when the quiz has no passing score
}

// GradeAnswers scores `answers` against the answer keys of `questions`, on the quiz max score scale:
// score = max_score * earned / total.
// A question earns its points only when the picked options exactly match its answer key.
// It has no side effects.
func GradeAnswers(q Quiz, questions []Question, answers Answers) (Grade, error) {
	var earned, total float64
	for _, qn := range questions {
		total += qn.Points
		if sameOptions(answers[qn.ID], qn.AnswerKey) {
			earned += qn.Points
		}
	}
	if len(questions) == 0 || total <= 0 {
		return Grade{}, ErrUngradableQuiz
	}

	g := Grade{
		Score:    round2(q.MaxScore * earned / total),
		MaxScore: q.MaxScore,
		Earned:   earned,
		Total:    total,
	}
	if q.PassingScore != nil {
		passed := g.Score >= *q.PassingScore
		g.Passed = &passed
	}
	return g, nil
}

// sameOptions compares two sets of option IDs, ignoring order and duplicates.
func sameOptions(picked, key []string) bool {
	if len(picked) == 0 || len(key) == 0 {
		return false
	}
	a, b := dedupSorted(picked), dedupSorted(key)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func dedupSorted(ids []string) []string {
	s := append([]string(nil), ids...)
	sort.Strings(s)
	out := s[:0]
	for i, id := range s {
		if i == 0 || id != s[i-1] {
			out = append(out, id)
		}
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
