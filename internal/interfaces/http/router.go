package http

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/jhoicas/StockLedger-api/internal/application/stock"
	"github.com/jhoicas/StockLedger-api/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	HoldUC    *stock.HoldUseCase
	LedgerUC  *stock.LedgerUseCase
	JWTSecret string
	Log       *logger.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	// Prometheus (público, lo consume el scraper interno)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/stock", AuthMiddleware(deps.JWTSecret))

	// Reservas (protegido)
	stockHandler := NewStockHandler(deps.HoldUC, deps.Log)
	protected.Post("/holds", stockHandler.PlaceHold)
	protected.Post("/holds/sweep-expired", stockHandler.SweepExpired)
	protected.Get("/holds/:hold_id", stockHandler.GetHold)
	protected.Post("/holds/:hold_id/capture", stockHandler.CaptureHold)
	protected.Post("/holds/:hold_id/release", stockHandler.ReleaseHold)
	protected.Get("/availability", stockHandler.GetAvailability)

	// Ledger (protegido)
	ledgerHandler := NewLedgerHandler(deps.LedgerUC, deps.Log)
	protected.Post("/movements", ledgerHandler.RegisterEntry)
	protected.Get("/movements", ledgerHandler.ListMovements)
}
