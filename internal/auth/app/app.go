package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aussiebroadwan/contacts/internal/auth/avatar"
	httpapi "github.com/aussiebroadwan/contacts/internal/auth/http"
	"github.com/aussiebroadwan/contacts/internal/auth/mail"
	"github.com/aussiebroadwan/contacts/internal/auth/obs"
	"github.com/aussiebroadwan/contacts/internal/auth/service"
	"github.com/aussiebroadwan/contacts/internal/auth/store"
	"github.com/aussiebroadwan/contacts/internal/auth/store/cache"
	"github.com/aussiebroadwan/contacts/internal/auth/store/drivers/postgres"
	"github.com/aussiebroadwan/contacts/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/contacts/pkg/cryptox"
	"github.com/aussiebroadwan/contacts/pkg/httpx"
	"github.com/aussiebroadwan/contacts/pkg/jwtx"
	"github.com/aussiebroadwan/contacts/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application wires the contacts auth service together.
type Application struct {
	cfg     Config
	logger  *slog.Logger
	metrics *obs.Metrics

	db    store.Store
	redis *cache.RedisKV // nil without REDIS_ADDR

	sessionService      *service.SessionService
	userService         *service.UserService
	emailDispatcher     *service.EmailDispatcher
	housekeepingService *service.HousekeepingService
	closeMail           func() error

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(ctx context.Context, cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "contacts",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: obs.NewMetrics(),
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initServices(ctx); err != nil {
		_ = app.closeBackends()
		return nil, err
	}
	if err := app.initHTTP(); err != nil {
		_ = app.closeBackends()
		return nil, err
	}

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.emailDispatcher.Start()
	app.housekeepingService.Start()

	app.logger.Info("contacts service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests, flushes queued email and closes the
// database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down contacts service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.emailDispatcher.Stop()

	if err := app.closeBackends(); err != nil {
		return err
	}

	app.logger.Info("contacts service stopped")
	return nil
}

// closeBackends releases the mail transport, the Redis client and the
// database, in that order. Every one is closed even when an earlier one fails.
func (app *Application) closeBackends() error {
	var errs []error
	if app.closeMail != nil {
		if err := app.closeMail(); err != nil {
			app.logger.Error("error closing mail transport", "error", err)
			errs = append(errs, err)
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initDatabase opens the configured driver, applies migrations and puts the
// Redis cache in front when configured.
func (app *Application) initDatabase(ctx context.Context) error {
	var db store.Store
	switch app.cfg.DatabaseDriver {
	case DriverPostgres:
		pg, err := postgres.NewStore(ctx, postgres.Config{URL: app.cfg.DatabaseURL})
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		db = pg
	default:
		lite, err := sqlite.NewStore(app.cfg.DatabaseFile)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		db = lite
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)

	if app.cfg.RedisAddr != "" {
		kv, err := cache.NewRedisKV(ctx, cache.RedisConfig{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})
		if err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.redis = kv
		db = cache.New(db, kv, app.cfg.CacheTTL, app.logger, app.metrics)
		app.logger.Info("user cache enabled", "addr", app.cfg.RedisAddr, "ttl", app.cfg.CacheTTL)
	}

	app.db = db
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices(ctx context.Context) error {
	secret, err := app.secret()
	if err != nil {
		return err
	}
	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		Secret:     secret,
		Algorithm:  app.cfg.Algorithm,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
		EmailTTL:   app.cfg.EmailTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}

	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	hasher := cryptox.NewHasher(pepper, cryptox.DefaultParams)

	sender, err := app.mailSender()
	if err != nil {
		return err
	}
	app.emailDispatcher = service.NewEmailDispatcher(sender, app.logger, app.metrics, app.cfg.EmailQueueSize)

	app.sessionService = &service.SessionService{
		Store:   app.db,
		Codec:   codec,
		Hasher:  hasher,
		Emails:  app.emailDispatcher,
		Metrics: app.metrics,
	}
	app.userService = &service.UserService{
		Store:    app.db,
		Hasher:   hasher,
		Sessions: app.sessionService,
	}

	if app.cfg.S3Bucket != "" {
		uploader, err := avatar.NewS3Uploader(ctx, avatar.Config{
			Bucket:        app.cfg.S3Bucket,
			Region:        app.cfg.S3Region,
			Endpoint:      app.cfg.S3Endpoint,
			AccessKey:     app.cfg.S3AccessKey,
			SecretKey:     app.cfg.S3SecretKey,
			PublicBaseURL: app.cfg.S3PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize avatar storage: %w", err)
		}
		app.userService.Avatars = uploader
		app.logger.Info("avatar uploads enabled", "bucket", app.cfg.S3Bucket)
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.UnconfirmedRetention,
	)
	return nil
}

// secret returns the configured signing secret. Dev deployments without one
// get a random secret, so tokens do not survive a restart.
func (app *Application) secret() ([]byte, error) {
	if app.cfg.SecretKey != "" {
		return []byte(app.cfg.SecretKey), nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	app.logger.Warn("CONTACTS_SECRET_KEY not set, using a random secret for this process")
	return b, nil
}

func (app *Application) mailSender() (service.EmailSender, error) {
	switch app.cfg.MailTransport {
	case MailSMTP:
		s, err := mail.NewSMTPSender(mail.SMTPConfig{
			Addr:     net.JoinHostPort(app.cfg.MailServer, strconv.Itoa(app.cfg.MailPort)),
			Username: app.cfg.MailUsername,
			Password: app.cfg.MailPassword,
			From:     app.cfg.MailFrom,
			UseTLS:   app.cfg.MailSSLTLS,
		}, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize smtp transport: %w", err)
		}
		return s, nil
	case MailKafka:
		k, err := mail.NewKafkaSender(app.cfg.MailKafkaBrokers, app.cfg.MailKafkaTopic, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize kafka transport: %w", err)
		}
		app.closeMail = k.Close
		return k, nil
	default:
		app.logger.Warn("MAIL_TRANSPORT=log, emails will only be logged")
		return &mail.LogSender{Logger: app.logger}, nil
	}
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() error {
	proxies, err := httpx.ParseTrustedProxies(app.cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	httpx.SetTrustedProxies(proxies)

	router := httpapi.NewRouter(BuildVersion, app.logger)
	router.Use(
		httpx.BanIPs(app.cfg.BannedIPs),
		httpx.CORS(httpx.CORSConfig{AllowedOrigins: app.cfg.CORSOrigins}),
	)

	router.SessionService = app.sessionService
	router.UserService = app.userService
	router.Metrics = app.metrics
	router.BaseURL = app.cfg.BaseURL
	router.Readiness = []httpapi.ReadinessCheck{{Name: "database", Ping: app.db.Ping}}
	if app.redis != nil {
		router.Readiness = append(router.Readiness, httpapi.ReadinessCheck{Name: "cache", Ping: app.redis.Ping})
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}

// Handler exposes the fully wired router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }
