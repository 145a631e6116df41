package main

import (
	"context"
	"database/sql"
	"expvar"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-fees/apps/api/echo"
	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/scholarship"
	"github.com/trezcool/masomo-fees/core/user"
	"github.com/trezcool/masomo-fees/services/email"
	"github.com/trezcool/masomo-fees/services/export"
	"github.com/trezcool/masomo-fees/services/gateway"
	"github.com/trezcool/masomo-fees/services/logger"
	"github.com/trezcool/masomo-fees/services/metrics"
	"github.com/trezcool/masomo-fees/storage/database"
	"github.com/trezcool/masomo-fees/storage/database/dummy"
	"github.com/trezcool/masomo-fees/storage/database/sqlx"
)

type repositories struct {
	txr         core.TxRunner
	user        user.Repository
	fee         fee.Repository
	scholarship scholarship.Repository
}

func main() {
	inMem := flag.Bool("inmem", false, "keep everything in memory instead of Postgres (data is lost on exit)")
	flag.Parse()

	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB & repos
	var repos repositories
	if *inMem {
		db := dummydb.Open()
		repos = repositories{
			txr:         db,
			user:        dummydb.NewUserRepository(db),
			fee:         dummydb.NewFeeRepository(db),
			scholarship: dummydb.NewScholarshipRepository(db),
		}
		logger.Warn("running with the in-memory store")
	} else {
		db, err := setUpDB(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		repos = repositories{
			txr:         database.NewTxRunner(db),
			user:        sqlxrepos.NewUserRepository(db),
			fee:         sqlxrepos.NewFeeRepository(db),
			scholarship: sqlxrepos.NewScholarshipRepository(db),
		}
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	recorder := metrics.New()
	usrSvc := user.NewService(repos.user)

	feeDeps := fee.Deps{
		Conf:     conf,
		Logger:   logger,
		TxRunner: repos.txr,
		Repo:     repos.fee,
		Students: usrSvc,
		Validate: validate,
		MailSvc:  mailSvc,
		Receipts: exportsvc.NewPDFReceipts(),
		Recorder: recorder,
	}
	gateway := gatewaysvc.NewMidtrans(conf, logger)
	if gateway != nil {
		feeDeps.Gateway = gateway
	} else {
		logger.Warn("online payments disabled: no Midtrans server key configured")
	}
	feeSvc, err := fee.NewService(feeDeps)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up fee service: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("store").Set(map[bool]string{true: "memory", false: "postgres"}[*inMem])

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		FeeSvc:         feeSvc,
		ScholarshipSvc: scholarship.NewService(repos.txr, repos.scholarship, validate),
		Validate:       validate,
		Translator:     translator,
		Gateway:        gateway,
		Metrics:        recorder,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
