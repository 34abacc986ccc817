package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jhoicas/StockLedger-api/internal/application/stock"
	"github.com/jhoicas/StockLedger-api/internal/infrastructure/postgres"
	"github.com/jhoicas/StockLedger-api/internal/jobs"
	httpRouter "github.com/jhoicas/StockLedger-api/internal/interfaces/http"
	"github.com/jhoicas/StockLedger-api/pkg/config"
	"github.com/jhoicas/StockLedger-api/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	ledgerRepo := postgres.NewStockLedgerRepository(pool)
	holdRepo := postgres.NewStockHoldRepository(pool)
	idemRepo := postgres.NewIdempotencyRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	holdUC := stock.NewHoldUseCase(txRunner, ledgerRepo, holdRepo,
		cfg.Stock.HoldTTLMinutes, cfg.Stock.SweepBatchSize)
	ledgerUC := stock.NewLedgerUseCase(txRunner, ledgerRepo)

	// Redis opcional: coordina el barrido entre réplicas. Sin Redis el barrido
	// corre igual; las transiciones guardadas por estado absorben el solape.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis no disponible; barrido sin coordinación")
			redisClient = nil
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "StockLedger API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		HoldUC:    holdUC,
		LedgerUC:  ledgerUC,
		JWTSecret: cfg.JWT.Secret,
		Log:       log,
	})

	sweeper := jobs.NewSweeper(holdUC, holdRepo, idemRepo, redisClient,
		cfg.Stock.SweepIntervalSeconds, cfg.Stock.IdempotencyRetentionDays, log)
	jobCtx, stopJobs := context.WithCancel(ctx)
	go sweeper.Run(jobCtx)

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")
	stopJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
