// Package dummydb is an in-memory database for tests and local runs without Postgres.
package dummydb

import (
	"sync"

	"github.com/trezcool/masomo-quiz/core/quiz"
	"github.com/trezcool/masomo-quiz/core/user"
)

type (
	// DB holds the tables. Writers are serialized by txMu, and transactions stage their
	// writes on a copy of the tables swapped in on commit.
	DB struct {
		txMu sync.Mutex
		mu   sync.RWMutex
		t    *tables
	}

	tables struct {
		user     map[string]user.User
		quiz     map[string]quiz.Quiz
		question map[string]quiz.Question
		attempt  map[string]quiz.Attempt
		mark     map[markKey]quiz.Mark
	}

	markKey struct {
		quizID    string
		studentID string
	}
)

func Open() *DB {
	return &DB{t: newTables()}
}

func newTables() *tables {
	return &tables{
		user:     make(map[string]user.User),
		quiz:     make(map[string]quiz.Quiz),
		question: make(map[string]quiz.Question),
		attempt:  make(map[string]quiz.Attempt),
		mark:     make(map[markKey]quiz.Mark),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()
	db.t = newTables()
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.user {
		c.user[k] = cloneUser(v)
	}
	for k, v := range t.quiz {
		c.quiz[k] = v
	}
	for k, v := range t.question {
		c.question[k] = cloneQuestion(v)
	}
	for k, v := range t.attempt {
		c.attempt[k] = cloneAttempt(v)
	}
	for k, v := range t.mark {
		c.mark[k] = v
	}
	return c
}

// read runs fn on the committed tables.
func (db *DB) read(fn func(t *tables)) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	fn(db.t)
}

// write runs fn on the committed tables, outside of any transaction.
func (db *DB) write(fn func(t *tables) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.t)
}

// tx runs fn on a copy of the tables, committed if fn succeeds.
func (db *DB) tx(fn func(t *tables) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	staged := db.t.clone()
	db.mu.RUnlock()

	if err := fn(staged); err != nil {
		return err
	}

	db.mu.Lock()
	db.t = staged
	db.mu.Unlock()
	return nil
}

// session is either the DB itself or a running transaction.
type session struct {
	db     *DB
	staged *tables // nil outside of a transaction
}

func (s session) read(fn func(t *tables)) {
	if s.staged != nil {
		fn(s.staged)
		return
	}
	s.db.read(fn)
}

func (s session) write(fn func(t *tables) error) error {
	if s.staged != nil {
		return fn(s.staged)
	}
	return s.db.write(fn)
}

func cloneUser(u user.User) user.User {
	u.Roles = append([]string(nil), u.Roles...)
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	return u
}

func cloneQuestion(qn quiz.Question) quiz.Question {
	qn.Options = append([]quiz.Option(nil), qn.Options...)
	qn.AnswerKey = append([]string(nil), qn.AnswerKey...)
	return qn
}

func cloneAttempt(a quiz.Attempt) quiz.Attempt {
	answers := make(quiz.Answers, len(a.Answers))
	for qid, opts := range a.Answers {
		answers[qid] = append([]string(nil), opts...)
	}
	a.Answers = answers
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		a.SubmittedAt = &t
	}
	if a.Score != nil {
		f := *a.Score
		a.Score = &f
	}
	if a.MaxScore != nil {
		f := *a.MaxScore
		a.MaxScore = &f
	}
	if a.Passed != nil {
		b := *a.Passed
		a.Passed = &b
	}
	return a
}
