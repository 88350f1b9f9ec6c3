package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io/ioutil"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-quiz/core/quiz"
	"github.com/trezcool/masomo-quiz/core/user"
	dummydb "github.com/trezcool/masomo-quiz/storage/database/dummy"
	"github.com/trezcool/masomo-quiz/tests"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fixture struct {
	cli     *commandLine
	usrRepo user.Repository
	quizSvc quiz.ServiceInterface
	now     time.Time
}

func setup(t *testing.T) *fixture {
	// set up DB & repos
	db := dummydb.Open()
	usrRepo := dummydb.NewUserRepository(db)

	f := &fixture{usrRepo: usrRepo, now: time.Now().UTC()}
	clock := func() time.Time { return f.now }
	f.quizSvc = quiz.NewService(testutil.Config(), dummydb.NewQuizRepository(db), nil, nil, nopLogger{}, clock)

	orig := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = orig })

	// start CLI
	f.cli = &commandLine{
		db:      new(sql.DB),
		usrRepo: usrRepo,
		quizSvc: f.quizSvc,
		out:     ioutil.Discard,
	}
	return f
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	f := setup(t)

	defer func(orig func(*sql.DB, string, ...string) error) { migrateFunc = orig }(migrateFunc)
	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "gradebook", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := f.cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				assert.NoError(t, err)
			}
		})
	}

	t.Run("no postgres", func(t *testing.T) {
		cli := *f.cli
		cli.db = nil
		assert.Equal(t, errNoSQL, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	f := setup(t)

	usr := testutil.CreateUser(t, f.usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", "AWE@test.cd"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := f.cli.run(args)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)

			refreshedUsr, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.False(t, bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash), "failed to update new password")
			assert.NoError(t, refreshedUsr.CheckPassword(tt.extra.(extra).pwd))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	f := setup(t)

	existing := testutil.CreateUser(t, f.usrRepo, "Teacher", "teach", "teach@test.cd", "mdr", []string{user.RoleTeacher}, false)

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("S3cr3t!pwd"), nil }

	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "unknown role", args: []string{"adduser", "-username", "lol", "-roles", "lol:"}, wantErrStr: "\"lol:\": no such role"},
		{
			name: "create", args: []string{"adduser", "-username", "Boss", "-email", "boss@test.cd", "-roles", "admin:, teacher:"},
			extra: func(t *testing.T) {
				usr, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{Username: "boss"})
				require.NoError(t, err)
				assert.Equal(t, "boss", usr.Name)
				assert.Equal(t, "boss@test.cd", usr.Email)
				assert.Equal(t, []string{user.RoleAdmin, user.RoleTeacher}, usr.Roles)
				assert.True(t, usr.IsActive)
				assert.NoError(t, usr.CheckPassword("S3cr3t!pwd"))
			},
		},
		{
			name: "update by email", args: []string{"adduser", "-email", "TEACH@test.cd", "-name", "Mr Teacher"},
			extra: func(t *testing.T) {
				usr, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{ID: existing.ID})
				require.NoError(t, err)
				assert.Equal(t, "Mr Teacher", usr.Name)
				assert.Equal(t, []string{user.RoleTeacher}, usr.Roles)
				assert.True(t, usr.IsActive)
				assert.NoError(t, usr.CheckPassword("S3cr3t!pwd"))
			},
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := f.cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				require.NoError(t, err)
			}
			if check, ok := tt.extra.(func(*testing.T)); ok {
				check(t)
			}
		})
	}
}

func Test_commandLine_sweep(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	student := testutil.CreateUser(t, f.usrRepo, "Student", "student", "student@test.cd", "", []string{user.RoleStudent}, true)
	nq := quiz.NewQuiz{CourseID: "c1", Title: "Quiz", MaxScore: 10, MaxAttempts: 3, IsPublished: true}
	limit := 30
	nq.TimeLimit = &limit
	q, _ := testutil.CreateQuiz(t, f.quizSvc, nq, "teacher", 1)

	a, err := f.quizSvc.StartAttempt(ctx, q.ID, student.ID)
	require.NoError(t, err)

	// nothing overdue yet
	require.NoError(t, f.cli.run([]string{"admin", "sweep"}))
	a, err = f.quizSvc.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusInProgress, a.Status)

	f.now = f.now.Add(31 * time.Minute)
	require.NoError(t, f.cli.run([]string{"admin", "sweep"}))
	a, err = f.quizSvc.GetAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, quiz.StatusTimedOut, a.Status)
}
