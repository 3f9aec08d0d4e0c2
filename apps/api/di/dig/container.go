package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/schoolfees/apps/api/echo"
	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/duedate"
	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/core/notification"
	"github.com/trezcool/schoolfees/core/student"
	emailsvc "github.com/trezcool/schoolfees/services/email"
	locksvc "github.com/trezcool/schoolfees/services/lock"
	logsvc "github.com/trezcool/schoolfees/services/logger"
	"github.com/trezcool/schoolfees/services/messaging"
	"github.com/trezcool/schoolfees/services/scheduler"
	"github.com/trezcool/schoolfees/storage/database"
	inmemdb "github.com/trezcool/schoolfees/storage/database/inmem"
	"github.com/trezcool/schoolfees/storage/database/sqlxrepos"
)

// EngineMemory keeps everything in process memory (demos & local runs without postgres).
const EngineMemory = "memory"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	SchedulerLoggerParam struct {
		dig.In
		Logger core.Logger `name:"schedulerLogger"`
	}

	// Storage holds the repositories of the configured database engine.
	// DB is nil with the in-memory engine.
	Storage struct {
		dig.Out
		DB            core.DB
		Ledgers       fee.Repository
		Notifications notification.Repository
		Students      student.Repository
		Directory     student.Directory
	}

	// StorageParam lets invokers depend on what Storage provides.
	StorageParam struct {
		dig.In
		DB            core.DB
		Ledgers       fee.Repository
		Notifications notification.Repository
		Students      student.Repository
	}
)

func newStdLogger(prefix string, flags int) *log.Logger {
	return log.New(os.Stdout, prefix, flags)
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(newStdLogger("API : ", log.LstdFlags), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(newStdLogger("DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newSchedulerLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(newStdLogger("SCHEDULER : ", log.LstdFlags), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.Database.Engine == EngineMemory {
		db := inmemdb.Open()
		students := inmemdb.NewStudentRepository(db)
		return Storage{
			Ledgers:       inmemdb.NewLedgerRepository(db),
			Notifications: inmemdb.NewNotificationRepository(db),
			Students:      students,
			Directory:     students,
		}
	}

	setUp := func() (core.DB, error) {
		if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
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

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	students := sqlxrepos.NewStudentRepository(db)
	return Storage{
		DB:            db,
		Ledgers:       sqlxrepos.NewLedgerRepository(db),
		Notifications: sqlxrepos.NewNotificationRepository(db),
		Students:      students,
		Directory:     students,
	}
}

func newEmailService(conf *core.Config) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)
	return validate
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return reg
}

func newRedisClient(conf *core.Config, logger core.Logger) *redis.Client {
	rdb, err := locksvc.NewRedisClient(context.Background(), conf)
	if err != nil {
		// the scan lock falls back to the in-process one
		logger.Error("connecting to redis", err)
		return nil
	}
	return rdb
}

func newSenders(mailSvc core.EmailService) map[notification.Channel]notification.Sender {
	return messaging.NewSenders(mailSvc, os.Stdout)
}

func newNotificationService(
	conf *core.Config,
	repo notification.Repository,
	students student.Directory,
	senders map[notification.Channel]notification.Sender,
	reg *prometheus.Registry,
	logger core.Logger,
) notification.Service {
	return notification.NewService(conf, repo, students, senders, notification.NewMetrics(reg), logger)
}

func newFeeService(
	repo fee.Repository,
	students student.Directory,
	notifSvc notification.Service,
	logger core.Logger,
) fee.Service {
	return fee.NewService(repo, students, notifSvc, logger)
}

func newScanner(
	conf *core.Config,
	ledgers fee.Repository,
	notifSvc notification.Service,
	policy duedate.LateFeePolicy,
	locker core.Locker,
	reg *prometheus.Registry,
	loggerParam SchedulerLoggerParam,
) *duedate.Scanner {
	return duedate.NewScanner(conf, ledgers, notifSvc, policy, locker, duedate.NewMetrics(reg), loggerParam.Logger)
}

func newScheduler(conf *core.Config, scanner *duedate.Scanner, loggerParam SchedulerLoggerParam) (*scheduler.Scheduler, error) {
	return scheduler.New(conf, scanner, newStdLogger("CRON : ", log.LstdFlags), loggerParam.Logger)
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	reg *prometheus.Registry,
	feeSvc fee.Service,
	notifSvc notification.Service,
	scanner *duedate.Scanner,
) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Address:    conf.Server.Address,
		AppName:    conf.AppName,
		SecretKey:  conf.SecretKey,
		Debug:      conf.Debug,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Gatherer:   reg,
		FeeSvc:     feeSvc,
		NotifSvc:   notifSvc,
		Scanner:    scanner,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newSchedulerLogger, dig.Name("schedulerLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newRegistry))
	must(c.Provide(newRedisClient))
	must(c.Provide(locksvc.NewLocker))
	must(c.Provide(duedate.NewPolicy))
	must(c.Provide(newSenders))
	must(c.Provide(newNotificationService))
	must(c.Provide(newFeeService))
	must(c.Provide(newScanner))
	must(c.Provide(newScheduler))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
