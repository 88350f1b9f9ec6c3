package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-quiz/core"
	"github.com/trezcool/masomo-quiz/core/quiz"
)

type quizRepository struct {
	session
}

var _ quiz.Repository = (*quizRepository)(nil) // interface compliance check

func NewQuizRepository(db *DB) *quizRepository {
	return &quizRepository{session: session{db: db}}
}

func (repo *quizRepository) WithTx(_ context.Context, fn func(repo quiz.Repository) error) error {
	if repo.staged != nil {
		return fn(repo)
	}
	return repo.db.tx(func(t *tables) error {
		return fn(&quizRepository{session: session{db: repo.db, staged: t}})
	})
}

// Quizzes

func (repo *quizRepository) CreateQuiz(_ context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	q.ID = uuid.New().String()
	err := repo.write(func(t *tables) error {
		t.quiz[q.ID] = q
		return nil
	})
	return q, err
}

func (repo *quizRepository) GetQuiz(_ context.Context, id string) (quiz.Quiz, error) {
	var (
		q  quiz.Quiz
		ok bool
	)
	repo.read(func(t *tables) { q, ok = t.quiz[id] })
	if !ok {
		return quiz.Quiz{}, quiz.ErrQuizNotFound
	}
	return q, nil
}

func (repo *quizRepository) QueryQuizzes(_ context.Context, filter *quiz.QueryFilter, ordering []core.DBOrdering) ([]quiz.Quiz, error) {
	quizzes := make([]quiz.Quiz, 0)
	repo.read(func(t *tables) {
		for _, q := range t.quiz {
			if filter != nil {
				if filter.CourseID != "" && q.CourseID != filter.CourseID {
					continue
				}
				if filter.IsPublished != nil && q.IsPublished != *filter.IsPublished {
					continue
				}
				if filter.Search != "" {
					search := strings.ToLower(filter.Search)
					if !strings.Contains(strings.ToLower(q.Title), search) &&
						!strings.Contains(strings.ToLower(q.Description), search) {
						continue
					}
				}
			}
			quizzes = append(quizzes, q)
		}
	})

	ordering = core.CleanOrdering(ordering, "title", "created_at", "course_id")
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	sort.SliceStable(quizzes, func(i, j int) bool {
		for _, ord := range ordering {
			var cmp int
			switch ord.Field {
			case "title":
				cmp = strings.Compare(quizzes[i].Title, quizzes[j].Title)
			case "course_id":
				cmp = strings.Compare(quizzes[i].CourseID, quizzes[j].CourseID)
			case "created_at":
				cmp = compareTimes(quizzes[i].CreatedAt, quizzes[j].CreatedAt)
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return quizzes[i].ID < quizzes[j].ID
	})
	return quizzes, nil
}

func (repo *quizRepository) UpdateQuiz(_ context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	err := repo.write(func(t *tables) error {
		if _, ok := t.quiz[q.ID]; !ok {
			return quiz.ErrQuizNotFound
		}
		t.quiz[q.ID] = q
		return nil
	})
	if err != nil {
		return quiz.Quiz{}, err
	}
	return q, nil
}

func (repo *quizRepository) DeleteQuiz(_ context.Context, id string) error {
	return repo.write(func(t *tables) error {
		if _, ok := t.quiz[id]; !ok {
			return quiz.ErrQuizNotFound
		}
		delete(t.quiz, id)
		for qid, qn := range t.question {
			if qn.QuizID == id {
				delete(t.question, qid)
			}
		}
		for aid, a := range t.attempt {
			if a.QuizID == id {
				delete(t.attempt, aid)
			}
		}
		for k := range t.mark {
			if k.quizID == id {
				delete(t.mark, k)
			}
		}
		return nil
	})
}

// Questions

func (repo *quizRepository) CreateQuestion(_ context.Context, qn quiz.Question) (quiz.Question, error) {
	qn.ID = uuid.New().String()
	err := repo.write(func(t *tables) error {
		if _, ok := t.quiz[qn.QuizID]; !ok {
			return quiz.ErrQuizNotFound
		}
		t.question[qn.ID] = cloneQuestion(qn)
		return nil
	})
	if err != nil {
		return quiz.Question{}, err
	}
	return qn, nil
}

func (repo *quizRepository) QueryQuestions(_ context.Context, quizID string) ([]quiz.Question, error) {
	questions := make([]quiz.Question, 0)
	repo.read(func(t *tables) {
		for _, qn := range t.question {
			if qn.QuizID == quizID {
				questions = append(questions, cloneQuestion(qn))
			}
		}
	})
	sort.Slice(questions, func(i, j int) bool { return questions[i].Position < questions[j].Position })
	return questions, nil
}

func (repo *quizRepository) DeleteQuestion(_ context.Context, quizID, id string) error {
	return repo.write(func(t *tables) error {
		qn, ok := t.question[id]
		if !ok || qn.QuizID != quizID {
			return quiz.ErrQuestionNotFound
		}
		delete(t.question, id)
		return nil
	})
}

// Attempts

// LockStudentQuiz is a no-op: transactions already run one at a time.
func (repo *quizRepository) LockStudentQuiz(context.Context, string, string) error {
	return nil
}

func (repo *quizRepository) CreateAttempt(_ context.Context, a quiz.Attempt) (quiz.Attempt, error) {
	a.ID = uuid.New().String()
	err := repo.write(func(t *tables) error {
		if _, ok := t.quiz[a.QuizID]; !ok {
			return quiz.ErrQuizNotFound
		}
		t.attempt[a.ID] = cloneAttempt(a)
		return nil
	})
	if err != nil {
		return quiz.Attempt{}, err
	}
	return a, nil
}

// GetAttempt ignores forUpdate: transactions already run one at a time.
func (repo *quizRepository) GetAttempt(_ context.Context, id string, _ bool) (quiz.Attempt, error) {
	var (
		a  quiz.Attempt
		ok bool
	)
	repo.read(func(t *tables) {
		if a, ok = t.attempt[id]; ok {
			a = cloneAttempt(a)
		}
	})
	if !ok {
		return quiz.Attempt{}, quiz.ErrAttemptNotFound
	}
	return a, nil
}

func (repo *quizRepository) QueryAttempts(_ context.Context, filter quiz.AttemptFilter) ([]quiz.Attempt, error) {
	statuses := make(map[quiz.Status]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		statuses[s] = true
	}

	attempts := make([]quiz.Attempt, 0)
	repo.read(func(t *tables) {
		for _, a := range t.attempt {
			if filter.QuizID != "" && a.QuizID != filter.QuizID {
				continue
			}
			if filter.StudentID != "" && a.StudentID != filter.StudentID {
				continue
			}
			if len(statuses) > 0 && !statuses[a.Status] {
				continue
			}
			attempts = append(attempts, cloneAttempt(a))
		}
	})
	sort.Slice(attempts, func(i, j int) bool {
		if !attempts[i].StartedAt.Equal(attempts[j].StartedAt) {
			return attempts[i].StartedAt.Before(attempts[j].StartedAt)
		}
		return attempts[i].Ordinal < attempts[j].Ordinal
	})
	return attempts, nil
}

func (repo *quizRepository) UpdateAttempt(_ context.Context, a quiz.Attempt) (quiz.Attempt, error) {
	err := repo.write(func(t *tables) error {
		if _, ok := t.attempt[a.ID]; !ok {
			return quiz.ErrAttemptNotFound
		}
		t.attempt[a.ID] = cloneAttempt(a)
		return nil
	})
	if err != nil {
		return quiz.Attempt{}, err
	}
	return a, nil
}

func (repo *quizRepository) DeleteAttempt(_ context.Context, id string) error {
	return repo.write(func(t *tables) error {
		if _, ok := t.attempt[id]; !ok {
			return quiz.ErrAttemptNotFound
		}
		delete(t.attempt, id)
		return nil
	})
}

func (repo *quizRepository) TimeOutAttempts(_ context.Context, now time.Time) (int, error) {
	var n int
	err := repo.write(func(t *tables) error {
		for id, a := range t.attempt {
			q, ok := t.quiz[a.QuizID]
			if !ok || a.Status != quiz.StatusInProgress || !a.IsTimedOut(q, now) {
				continue
			}
			a.Status = quiz.StatusTimedOut
			a.UpdatedAt = now
			t.attempt[id] = a
			n++
		}
		return nil
	})
	return n, err
}

// Gradebook

func (repo *quizRepository) RecordMark(_ context.Context, m quiz.Mark) (quiz.Mark, error) {
	err := repo.write(func(t *tables) error {
		key := markKey{quizID: m.QuizID, studentID: m.StudentID}
		if prev, ok := t.mark[key]; ok {
			if prev.BestScore > m.BestScore {
				m.BestScore = prev.BestScore
			}
			m.Attempts += prev.Attempts
		}
		t.mark[key] = m
		return nil
	})
	if err != nil {
		return quiz.Mark{}, err
	}
	return m, nil
}

func (repo *quizRepository) QueryMarks(_ context.Context, quizID string) ([]quiz.Mark, error) {
	marks := make([]quiz.Mark, 0)
	repo.read(func(t *tables) {
		for k, m := range t.mark {
			if k.quizID == quizID {
				marks = append(marks, m)
			}
		}
	})
	sort.Slice(marks, func(i, j int) bool { return marks[i].StudentID < marks[j].StudentID })
	return marks, nil
}

func (repo *quizRepository) QueryResults(ctx context.Context, quizID string) ([]quiz.StudentResult, error) {
	attempts, err := repo.QueryAttempts(ctx, quiz.AttemptFilter{
		QuizID:   quizID,
		Statuses: []quiz.Status{quiz.StatusGraded, quiz.StatusReturned},
	})
	if err != nil {
		return nil, err
	}

	type acc struct {
		res        quiz.StudentResult
		best, last *quiz.Attempt
	}
	byStudent := make(map[string]*acc)
	for i := range attempts {
		a := &attempts[i]
		if a.Score == nil {
			continue
		}
		r, ok := byStudent[a.StudentID]
		if !ok {
			r = &acc{res: quiz.StudentResult{StudentID: a.StudentID}}
			byStudent[a.StudentID] = r
		}
		r.res.Attempts++
		if r.best == nil || *a.Score > *r.best.Score {
			r.best = a
		}
		if r.last == nil || submittedAfter(*a, *r.last) {
			r.last = a
		}
	}

	results := make([]quiz.StudentResult, 0, len(byStudent))
	for _, r := range byStudent {
		r.res.BestScore = *r.best.Score
		r.res.LastScore = *r.last.Score
		r.res.Passed = r.best.Passed
		results = append(results, r.res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].StudentID < results[j].StudentID })
	return results, nil
}

func submittedAfter(a, b quiz.Attempt) bool {
	if a.SubmittedAt == nil || b.SubmittedAt == nil {
		return a.Ordinal > b.Ordinal
	}
	return a.SubmittedAt.After(*b.SubmittedAt)
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}
