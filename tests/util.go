// Package testutil holds the fixtures shared by the API, admin and storage tests.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/masomo-quiz/core"
	"github.com/trezcool/masomo-quiz/core/quiz"
	"github.com/trezcool/masomo-quiz/core/user"
	"github.com/trezcool/masomo-quiz/storage/database"
)

// Config returns a test configuration.
func Config() *core.Config {
	return &core.Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "Masomo",
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			DisableReqLogs:            true,
		},
		Database: core.DatabaseConfig{Engine: "dummy"},
		Quiz:     core.QuizConfig{NotifyResults: true},
	}
}

// OpenDB connects to the test Postgres database, migrates it and empties its tables.
// The test is skipped unless ENV=TEST and TEST_DATABASE_ENGINE=postgres.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if strings.ToUpper(os.Getenv("ENV")) != "TEST" || os.Getenv("TEST_DATABASE_ENGINE") != "postgres" {
		t.Skip("no test postgres database: set ENV=TEST and TEST_DATABASE_ENGINE=postgres")
	}

	conf := core.NewConfig()
	if err := database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, "up"); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	if _, err = db.Exec(`TRUNCATE mark, attempt, question, quiz, "user" CASCADE`); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateQuiz creates a published quiz with `nQuestions` two-option questions worth 1 point each.
// The first option of every question is the right one.
func CreateQuiz(t *testing.T, svc quiz.ServiceInterface, nq quiz.NewQuiz, createdBy string, nQuestions int) (quiz.Quiz, []quiz.Question) {
	t.Helper()
	ctx := context.Background()
	q, err := svc.CreateQuiz(ctx, nq, createdBy)
	if err != nil {
		t.Fatalf("CreateQuiz() failed: %v", err)
	}

	questions := make([]quiz.Question, 0, nQuestions)
	for i := 0; i < nQuestions; i++ {
		qn, err := svc.AddQuestion(ctx, q.ID, quiz.NewQuestion{
			Prompt:    "question",
			Options:   []quiz.NewOption{{Text: "right"}, {Text: "wrong"}},
			AnswerKey: []int{0},
			Points:    1,
		})
		if err != nil {
			t.Fatalf("CreateQuiz() failed: %v", err)
		}
		questions = append(questions, qn)
	}
	return q, questions
}

// Answers picks the right option of the first `right` questions and the wrong one of the others.
func Answers(questions []quiz.Question, right int) quiz.Answers {
	answers := make(quiz.Answers, len(questions))
	for i, qn := range questions {
		if i < right {
			answers[qn.ID] = []string{qn.AnswerKey[0]}
		} else {
			for _, opt := range qn.Options {
				if opt.ID != qn.AnswerKey[0] {
					answers[qn.ID] = []string{opt.ID}
					break
				}
			}
		}
	}
	return answers
}
