package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/saeid-a/SigmaChatSync/internal/config"
	"github.com/saeid-a/SigmaChatSync/internal/database"
	"github.com/saeid-a/SigmaChatSync/internal/logger"
	"github.com/saeid-a/SigmaChatSync/internal/notify"
	"github.com/saeid-a/SigmaChatSync/internal/preferences"
	"github.com/saeid-a/SigmaChatSync/internal/queue"
	"github.com/saeid-a/SigmaChatSync/internal/routes"
	"github.com/saeid-a/SigmaChatSync/internal/services"
	chatws "github.com/saeid-a/SigmaChatSync/internal/websocket"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLog := bootLogger()
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.AppEnv, cfg.LogLevel)
	if !cfg.EnvFileLoaded {
		log.Debug().Msg("no .env file found")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// bootLogger reads the logging settings straight from the environment for
// failures that happen before the config exists.
func bootLogger() zerolog.Logger {
	return logger.New(config.NormalizeEnv(os.Getenv("APP_ENV")), os.Getenv("LOG_LEVEL"))
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		return errors.New("DB_URL is required")
	}
	if cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	if err := database.ConnectDB(ctx, cfg.DBUrl, log); err != nil {
		return err
	}
	defer database.CloseDB()

	// 3. Device-local state
	prefs, err := preferences.Open(cfg.PreferencesPath)
	if err != nil {
		return err
	}
	defer prefs.Close()

	deviceID, err := prefs.DeviceID()
	if err != nil {
		return err
	}

	redisClient, err := notify.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	hub := chatws.NewHub(log)
	surface := notify.NewRedisSurface(redisClient, deviceID, cfg.NotificationHistory, hub)

	// 4. Push pipeline
	tasks, err := queue.NewAsynqClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer tasks.Close()

	worker, err := queue.NewAsynqServer(cfg.RedisURL, cfg.PushQueue, cfg.PushConcurrency, log)
	if err != nil {
		return err
	}
	dispatcher := services.NewNotificationDispatcher(surface, log)
	worker.Register(services.TaskPushMessage, dispatcher.HandlePushTask)

	// 5. Setup Fiber
	app := fiber.New()

	// Middleware
	app.Use(cors.New())
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	routes.RegisterRoutes(app, routes.Dependencies{
		Ctx:     ctx,
		Config:  cfg,
		DB:      database.DB,
		Prefs:   prefs,
		Hub:     hub,
		Surface: surface,
		Tasks:   tasks,
		Log:     log,
	})

	// 6. Start Server
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("device_id", deviceID).Msg("server starting")
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
