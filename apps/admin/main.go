package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/user"
	"github.com/trezcool/masomo-fees/services/logger"
	"github.com/trezcool/masomo-fees/storage/database"
	"github.com/trezcool/masomo-fees/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()

	rollbar := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	rollbar.Enable(!conf.Debug)
	logger = rollbar

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()

	// set up services
	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)

	usrRepo := sqlxrepos.NewUserRepository(db)
	feeSvc, err := fee.NewService(fee.Deps{
		Conf:     conf,
		Logger:   logger,
		TxRunner: database.NewTxRunner(db),
		Repo:     sqlxrepos.NewFeeRepository(db),
		Students: user.NewService(usrRepo),
		Validate: validate,
	})
	errAndDie(err)

	// start CLI
	cli := commandLine{
		conf:    conf,
		db:      db,
		usrRepo: usrRepo,
		feeSvc:  feeSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
