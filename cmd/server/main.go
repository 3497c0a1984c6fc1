package main // Entry point package

import (
	"context"
	"errors"
	"log" // Logging library used before the Echo logger exists
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4" // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"

	"github.com/iliyamo/donation-market/internal/auth"
	"github.com/iliyamo/donation-market/internal/config" // Internal config loader
	"github.com/iliyamo/donation-market/internal/database"
	"github.com/iliyamo/donation-market/internal/handler"
	"github.com/iliyamo/donation-market/internal/importer"
	"github.com/iliyamo/donation-market/internal/middleware"
	"github.com/iliyamo/donation-market/internal/notify"
	"github.com/iliyamo/donation-market/internal/queue"
	"github.com/iliyamo/donation-market/internal/repository"
	"github.com/iliyamo/donation-market/internal/router" // Internal router setup
	"github.com/iliyamo/donation-market/internal/service"
	"github.com/iliyamo/donation-market/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional; real environment wins
	cfg := config.Load() // Load environment config

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Logger.SetLevel(glog.INFO)
	if !cfg.IsProd() {
		e.Logger.SetLevel(glog.DEBUG)
	}
	e.HTTPErrorHandler = router.ErrorHandler
	e.Validator = handler.NewValidator()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		log.Fatalf("database: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		e.Logger.Warn("redis unavailable: rate limiting, response cache and the notification bus are off")
	} else {
		defer rdb.Close()
	}

	// Notifications: the hub holds this instance's sockets; the bus fans
	// out across instances when Redis is there.
	hub := notify.NewHub()
	var notifier notify.Notifier = notify.LocalNotifier{Hub: hub}
	if rdb != nil {
		bus := notify.NewRedisBus(rdb, hub, e.Logger)
		notifier = bus
		go func() {
			if err := bus.Run(ctx); err != nil {
				e.Logger.Errorf("notification bus: %v", err)
			}
		}()
	}
	var events queue.Publisher = queue.DirectPublisher{Notifier: notifier}
	if cfg.AMQPURL != "" {
		pub := queue.NewAMQPPublisher(cfg.AMQPURL)
		defer pub.Close()
		events = pub
		go func() {
			if err := queue.StartConsumer(ctx, cfg.AMQPURL, notifier, e.Logger); err != nil && !errors.Is(err, context.Canceled) {
				e.Logger.Errorf("reservation consumer: %v", err)
			}
		}()
	}

	var google auth.GoogleVerifier
	if v, err := auth.NewGoogleVerifier(ctx, cfg.GoogleClientID); err == nil {
		google = v
	} else if !errors.Is(err, auth.ErrGoogleDisabled) {
		e.Logger.Warnf("google sign-in disabled: %v", err)
	}

	dialect := repository.Dialect(cfg.DBDriver)
	clients := repository.NewClientRepo(db, dialect)
	addresses := repository.NewAddressRepo(db, dialect)
	categories := repository.NewCategoryRepo(db, dialect)
	posts := repository.NewPostRepo(db, dialect)
	reservations := repository.NewReservationRepo(db)

	clientSvc := service.NewClientService(clients, addresses, google, service.AuthSettings{
		JWTSecret:  cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		Pepper:     cfg.PasswordPepper,
		BcryptCost: cfg.BcryptCost,
	})
	postSvc := service.NewPostService(posts, categories, addresses)
	reservationSvc := service.NewReservationService(posts, clients, reservations, events, e.Logger)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("upload dir: %v", err)
	}
	photos := &handler.PhotoStore{Dir: cfg.UploadDir, MaxBytes: cfg.MaxUploadBytes}
	cacheCfg := config.LoadCacheConfig()
	purge := func(c echo.Context) {
		if err := middleware.PurgeCache(c.Request().Context(), cacheCfg, rdb); err != nil {
			c.Logger().Warnf("cache purge: %v", err)
		}
	}

	e.Use(echomw.RequestID())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				c.Logger().Warnf("%s %s %d %s: %v", v.Method, v.URI, v.Status, v.Latency, v.Error)
				return nil
			}
			c.Logger().Infof("%s %s %d %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("12M"))
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e, db, cfg.UploadDir) // Register application routes
	router.RegisterAuth(e, handler.NewAuthHandler(clientSvc, photos), handler.NewUserHandler(clientSvc, photos),
		cfg.JWTSecret, middleware.NewTokenBucket(config.LoadLoginRateLimitConfig(), rdb))
	router.RegisterPosts(e, handler.NewPostHandler(postSvc, photos), handler.NewCommentHandler(repository.NewCommentRepo(db)), cfg.JWTSecret)
	router.RegisterReservations(e, handler.NewReservationHandler(reservationSvc), cfg.JWTSecret)
	router.RegisterReference(e,
		&handler.CategoryHandler{Categories: categories, Cache: cacheCfg, Redis: rdb},
		&handler.AddressHandler{
			Addresses: addresses,
			Importer:  importer.NewPostalImporter(cfg.AddressAPIURL, addresses, e.Logger),
			Purge:     purge,
		},
		handler.Stats(repository.NewStatsRepo(db)),
		cfg.JWTSecret,
		middleware.NewRedisCache(cacheCfg, rdb),
	)

	ws := notify.NewServer(hub, e.Logger)
	if cfg.WSRequireAuth {
		ws.Authenticate = func(token string) (uint64, error) {
			claims, err := utils.ParseAccessToken(cfg.JWTSecret, token)
			if err != nil {
				return 0, err
			}
			return claims.ID, nil
		}
	}
	go func() {
		e.Logger.Infof("notifications listening on :%s", cfg.WSPort)
		if err := ws.ListenAndServe(":" + cfg.WSPort); err != nil {
			e.Logger.Errorf("notification server: %v", err)
		}
	}()

	addr := ":" + cfg.Port // Address string with port
	go func() {
		e.Logger.Infof("listening on %s (env=%s, db=%s)", addr, cfg.Env, cfg.DBDriver) // Print startup info
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ws.Shutdown(shutdownCtx); err != nil {
		e.Logger.Warnf("notification server shutdown: %v", err)
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Errorf("shutdown: %v", err)
	}
}
