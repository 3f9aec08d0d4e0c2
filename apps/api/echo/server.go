package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/duedate"
	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/core/notification"
)

type (
	// DueDateScanner runs the due-date scan & the manual fee reminders.
	DueDateScanner interface {
		Run(ctx context.Context) (duedate.ScanResult, error)
		RemindStudent(ctx context.Context, studentID string) (notification.Notification, error)
		RemindAllPending(ctx context.Context) (notification.BulkResult, error)
	}

	Options struct {
		Address        string
		AppName        string
		SecretKey      string
		Debug          bool
		DisableReqLogs bool
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		Gatherer       prometheus.Gatherer // /metrics is not served when nil
		FeeSvc         fee.Service
		NotifSvc       notification.Service
		Scanner        DueDateScanner
	}

	Server struct {
		opts     *Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(opts *Options) *Server {
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !s.opts.Debug {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.SignalShutdown)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", s.home)
	if s.opts.Gatherer != nil {
		s.app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(newJWTConfig(s.opts.SecretKey))

	registerFeeAPI(g, jwt, s.opts.FeeSvc, s.opts.Validate)
	registerNotificationAPI(g, jwt, s.opts.NotifSvc, s.opts.FeeSvc, s.opts.Scanner)
}

// Start blocks serving requests. Listener failures are reported on Errors().
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the process to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.AppName+" fees API!")
}
