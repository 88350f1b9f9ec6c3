package main

import (
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/trezcool/masomo-quiz/core"
	"github.com/trezcool/masomo-quiz/core/quiz"
	"github.com/trezcool/masomo-quiz/core/user"
	logsvc "github.com/trezcool/masomo-quiz/services/logger"
	"github.com/trezcool/masomo-quiz/storage/database"
	sqlxrepos "github.com/trezcool/masomo-quiz/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(!conf.Debug && conf.RollbarToken != "")

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()

	// start CLI
	usrRepo := sqlxrepos.NewUserRepository(db)
	cli := commandLine{
		db:      db.DB,
		usrRepo: usrRepo,
		quizSvc: quiz.NewService(
			conf,
			sqlxrepos.NewQuizRepository(db),
			user.NewService(usrRepo, core.UTCClock),
			nil, /* mailSvc */
			appLogger,
			core.UTCClock,
		),
		out: os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Println(color.RedString("error: %s", err))
		}
		_ = db.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(color.RedString("%v", err))
	}
}
