package main

import (
	"context"
	"errors"
	"fieldconfirm/cmd/internal/config"
	"fieldconfirm/cmd/internal/domain/sqlite"
	"fieldconfirm/cmd/internal/domain/sqlite/repository"
	"fieldconfirm/cmd/internal/integration/msgraph"
	"fieldconfirm/cmd/internal/reconcile"
	"fieldconfirm/cmd/internal/routes"
	"fieldconfirm/cmd/internal/service"
	"fieldconfirm/cmd/internal/telemetry"
	"fieldconfirm/cmd/internal/utils"
	"fieldconfirm/cmd/internal/utils/apierror"
	"fieldconfirm/cmd/internal/utils/signer"
	"fieldconfirm/cmd/internal/utils/validators"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
)

func main() {
	validate := validator.New()
	validators.Register(validate)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}

	// Init SQLite
	db, err := sqlite.Init(cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to initialize database: ", err)
	}

	// Graph calendar/mail client
	graph := msgraph.NewClient(msgraph.Config{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		Mailbox:      cfg.Graph.Mailbox,
		BaseURL:      cfg.Graph.BaseURL,
		Timeout:      cfg.Graph.Timeout,
		RPS:          cfg.Graph.RPS,
	})

	sign, err := signer.New(cfg.TokenSecret)
	if err != nil {
		log.Fatal("failed to initialize token signer: ", err)
	}

	// Metrics
	meterProvider, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:  cfg.Metrics.ServiceName,
		OTLPEndpoint: cfg.Metrics.OTLPEndpoint,
		Insecure:     cfg.Metrics.Insecure,
		Interval:     cfg.Metrics.Interval,
	})
	if err != nil {
		log.Fatal("failed to initialize metrics: ", err)
	}

	metrics, err := reconcile.NewMetrics(meterProvider.Meter(reconcile.MeterName))
	if err != nil {
		log.Fatal("failed to register metrics: ", err)
	}

	// Getting repositories
	scheduleRepo := repository.NewScheduleRepository(db)
	ticketRepo := repository.NewTicketRepository(db)

	engine := reconcile.NewEngine(graph, scheduleRepo, ticketRepo, sign,
		reconcile.Config{
			BatchSize:     cfg.BatchSize,
			PublicBaseURL: cfg.PublicBaseURL,
			Timezone:      cfg.Timezone,
		},
		reconcile.WithLocker(newLocker(cfg)),
		reconcile.WithMetrics(metrics),
	)

	// Getting services
	scheduleService := service.NewScheduleService(engine, scheduleRepo, validate)

	// Getting routes
	scheduleRoutes := routes.NewScheduleDefault(scheduleService)

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(log.INFO)
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Public accept/decline link from confirmation emails
	e.GET("/schedule-response", scheduleRoutes.RespondToLink)

	api := e.Group("/api", utils.OperatorAuth([]byte(cfg.OperatorJWTSecret), func(c echo.Context) error {
		return c.JSON(http.StatusUnauthorized, apierror.InvalidAuthTokenError)
	}))

	// Reconciliation
	api.POST("/reconcile", scheduleRoutes.Reconcile)

	// Schedules
	api.GET("/schedules/:id", scheduleRoutes.GetSchedule)
	api.POST("/schedules/:id/invite", scheduleRoutes.SendCustomerInvite)
	api.POST("/schedules/:id/confirm", scheduleRoutes.ForceConfirm)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reconcile.NewPoller(engine, cfg.ReconcileInterval).Start(ctx)

	go func() {
		err := e.Start(cfg.HTTPAddr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Error(err)
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to flush metrics: ", err)
	}
}

// newLocker shares schedule locks through Redis when configured, so several
// replicas can poll safely. Otherwise locks are process-local.
func newLocker(cfg *config.Config) reconcile.Locker {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set, schedule locks are process-local")
		return reconcile.NewMemoryLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return reconcile.NewRedisLocker(client, cfg.LockTTL)
}
