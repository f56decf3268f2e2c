package router

import (
	"errors"
	"time"

	authsvc "tokenshare-backend/internal/application/auth"
	distsvc "tokenshare-backend/internal/application/distribution"
	holdsvc "tokenshare-backend/internal/application/holdings"
	"tokenshare-backend/internal/application/ledger"
	projsvc "tokenshare-backend/internal/application/projects"
	"tokenshare-backend/internal/application/readiness"
	salesvc "tokenshare-backend/internal/application/sale"
	txsvc "tokenshare-backend/internal/application/transactions"
	"tokenshare-backend/internal/config"
	"tokenshare-backend/internal/infrastructure/database"
	authhandler "tokenshare-backend/internal/interfaces/handlers/auth"
	disthandler "tokenshare-backend/internal/interfaces/handlers/distributions"
	healthhandler "tokenshare-backend/internal/interfaces/handlers/health"
	holdhandler "tokenshare-backend/internal/interfaces/handlers/holdings"
	projhandler "tokenshare-backend/internal/interfaces/handlers/projects"
	salehandler "tokenshare-backend/internal/interfaces/handlers/sales"
	txhandler "tokenshare-backend/internal/interfaces/handlers/transactions"
	"tokenshare-backend/internal/middleware"
	"tokenshare-backend/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Components are the long-lived dependencies behind the app, for startup checks,
// background jobs and shutdown.
type Components struct {
	DB     *gorm.DB
	Rdb    *redis.Client
	Ledger ledger.Client
	Sales  *salesvc.Service
}

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	if g == nil || g.db == nil {
		return errors.New("database not configured")
	}
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// NewLedger picks the HTTP gateway when LEDGER_URL is set, otherwise the
// in-process ledger.
func NewLedger(cfg *config.Config) ledger.Client {
	if cfg.LedgerURL != "" {
		return ledger.NewHTTPClient(cfg.LedgerURL, cfg.LedgerAPIKey, cfg.LedgerTimeout, cfg.LedgerRatePerSec)
	}
	if cfg.IsProduction() {
		log.Error().Msg("LEDGER_URL is not set in production; using the in-process ledger")
	} else {
		log.Warn().Msg("LEDGER_URL not set; using the in-process ledger")
	}
	return ledger.NewMemory()
}

func CreateApp(cfg *config.Config) (*fiber.App, *Components, error) {
	sessionCfg := middleware.SessionConfig{
		Secret:            cfg.SessionSecret,
		RedisURL:          cfg.RedisURL,
		CookieDomain:      cfg.CookieDomain,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.IsProduction(),
	}
	sessionHandler, rdb, err := middleware.Session(sessionCfg)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
	}

	comps := &Components{DB: db, Rdb: rdb, Ledger: NewLedger(cfg)}
	app := New(cfg, sessionHandler, comps)
	return app, comps, nil
}

// New builds the Fiber app over already opened dependencies. Domain routes are
// only mounted when a database is present.
func New(cfg *config.Config, sessionHandler fiber.Handler, comps *Components) *fiber.App {
	// A request may hold a full ledger call.
	writeTimeout := cfg.LedgerTimeout + 15*time.Second
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
		ReadTimeout:             30 * time.Second,
		WriteTimeout:            writeTimeout,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix:  cfg.FrontendURLEndsWith,
		DevPassword:    cfg.DevPassword,
		AllowLocalhost: !cfg.IsProduction(),
	}))
	app.Use(sessionHandler)
	app.Use(middleware.HealthMarker(comps.Rdb))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb:            comps.Rdb,
		Ledger:         comps.Ledger,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	if comps.DB != nil {
		hh.DB = &gormDBPinger{db: comps.DB}
	}
	app.Get("/reset", hh.Reset)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)

	sessionCfg := middleware.SessionConfig{
		CookieDomain:      cfg.CookieDomain,
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.IsProduction(),
	}
	var userFinder authsvc.UserFinder
	if comps.DB != nil {
		userFinder = &authsvc.GormUserFinder{DB: comps.DB}
	}
	ah := &authhandler.Handlers{
		UserFinder: userFinder,
		Rdb:        comps.Rdb,
		Config:     sessionCfg,
	}
	authGroup := app.Group("/api/v1/auth")
	authGroup.Post("/login", ah.Login)
	authGroup.Get("/me", ah.Me)
	authGroup.Delete("/logout", ah.Logout)

	db := comps.DB
	if db == nil {
		log.Warn().Msg("no database configured; domain routes are not mounted")
		return app
	}

	// Projects
	ps := &projsvc.Service{DB: db}
	ph := &projhandler.Handlers{Service: ps}
	pg := app.Group("/api/v1/projects", middleware.RequireAuth())
	pg.Post("/create-project", middleware.AuthorizePermission(constants.ManageProjects), ph.Create)
	pg.Get("/:id", middleware.AuthorizePermission(constants.ViewData), ph.Get)
	pg.Post("/:id/cancel", middleware.AuthorizePermission(constants.ManageProjects), ph.Cancel)

	// Sales
	ss := &salesvc.Service{DB: db, Ledger: comps.Ledger, LedgerTimeout: cfg.LedgerTimeout}
	comps.Sales = ss
	sh := &salehandler.Handlers{Service: ss, ReconcileBatch: cfg.LedgerReconcileBatch}
	sg := app.Group("/api/v1/sales", middleware.RequireAuth())
	sg.Post("/purchase", middleware.AuthorizePermission(constants.BuyTokens), sh.Purchase)
	sg.Post("/reconcile-ledger", middleware.AuthorizePermission(constants.ReconcileLedger), sh.ReconcileLedger)

	// Distributions
	dh := &disthandler.Handlers{
		Gate:         &readiness.Service{DB: db},
		Distribution: &distsvc.Service{DB: db, Ledger: comps.Ledger, LedgerTimeout: cfg.LedgerTimeout, MaxAttempts: cfg.DistributeMaxAttempts},
	}
	dg := app.Group("/api/v1/distributions", middleware.RequireAuth())
	dg.Get("/:project_id/readiness", middleware.AuthorizePermission(constants.ViewData), dh.Readiness)
	dg.Post("/:project_id/distribute", middleware.AuthorizePermission(constants.DistributeProfit), dh.Distribute)
	dg.Get("/:project_id", middleware.AuthorizePermission(constants.ViewData), dh.Get)

	// Holdings
	holdh := &holdhandler.Handlers{Service: &holdsvc.Service{DB: db}}
	hg := app.Group("/api/v1/holdings", middleware.RequireAuth(), middleware.AuthorizePermission(constants.ViewData))
	hg.Get("/view-holdings", holdh.ViewHoldings)
	hg.Get("/view-credits", holdh.ViewCredits)

	// Transactions
	txh := &txhandler.Handlers{Service: &txsvc.Service{DB: db}}
	txg := app.Group("/api/v1/transactions", middleware.RequireAuth())
	txg.Get("/get-transactions", txh.GetTransactions)

	return app
}
