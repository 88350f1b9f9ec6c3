package dig_container

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/masomo-quiz/apps/api/echo"
	"github.com/trezcool/masomo-quiz/core"
	"github.com/trezcool/masomo-quiz/core/quiz"
	"github.com/trezcool/masomo-quiz/core/user"
	emailsvc "github.com/trezcool/masomo-quiz/services/email"
	logsvc "github.com/trezcool/masomo-quiz/services/logger"
	schedulersvc "github.com/trezcool/masomo-quiz/services/scheduler"
	"github.com/trezcool/masomo-quiz/storage/database"
	dummydb "github.com/trezcool/masomo-quiz/storage/database/dummy"
	sqlxrepos "github.com/trezcool/masomo-quiz/storage/database/sqlx"
)

// dummyEngine keeps the data in memory instead of Postgres.
const dummyEngine = "dummy"

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Repositories are the storage of the services, picked from the database engine.
type Repositories struct {
	dig.Out
	Users   user.Repository
	Quizzes quiz.Repository
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

// newDB returns nil when running on the dummy engine.
func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	if conf.Database.Engine == dummyEngine {
		return nil
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newRepositories(conf *core.Config, db *sqlx.DB) Repositories {
	if conf.Database.Engine == dummyEngine {
		mem := dummydb.Open()
		return Repositories{
			Users:   dummydb.NewUserRepository(mem),
			Quizzes: dummydb.NewQuizRepository(mem),
		}
	}
	return Repositories{
		Users:   sqlxrepos.NewUserRepository(db),
		Quizzes: sqlxrepos.NewQuizRepository(db),
	}
}

// newSQLDB exposes the raw connection pool, for closing it on shutdown.
func newSQLDB(db *sqlx.DB) *sql.DB {
	if db == nil {
		return nil
	}
	return db.DB
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newClock() core.Clock {
	return core.UTCClock
}

func newUserService(repo user.Repository, clock core.Clock) user.ServiceInterface {
	return user.NewService(repo, clock)
}

func newQuizService(
	conf *core.Config,
	repo quiz.Repository,
	usrSvc user.ServiceInterface,
	mailSvc core.EmailService,
	logger core.Logger,
	clock core.Clock,
) quiz.ServiceInterface {
	return quiz.NewService(conf, repo, usrSvc, mailSvc, logger, clock)
}

// newScheduler returns nil when the sweep is disabled.
func newScheduler(conf *core.Config, svc quiz.ServiceInterface, logger core.Logger) (*schedulersvc.Scheduler, error) {
	if conf.Quiz.SweepSchedule == "" {
		return nil, nil
	}
	return schedulersvc.NewScheduler(conf, svc, logger)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newSQLDB))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newClock))
	must(c.Provide(newUserService))
	must(c.Provide(newQuizService))
	must(c.Provide(newScheduler))
	must(c.Provide(echoapi.NewServer))

	return c
}

// Visualize writes the dependency graph of `c` in DOT format.
func Visualize(c *dig.Container) error {
	return dig.Visualize(c, os.Stdout)
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
