package router

import (
	"net/http"

	"fit-atlas/internal/application/catalogue"
	"fit-atlas/internal/application/financial"
	"fit-atlas/internal/application/geo"
	healthsvc "fit-atlas/internal/application/health"
	"fit-atlas/internal/application/index"
	"fit-atlas/internal/application/parser"
	querysvc "fit-atlas/internal/application/query"
	"fit-atlas/internal/application/tariff"
	"fit-atlas/internal/config"
	"fit-atlas/internal/infrastructure/database"
	cataloguehandler "fit-atlas/internal/interfaces/handlers/catalogue"
	healthhandler "fit-atlas/internal/interfaces/handlers/health"
	placeshandler "fit-atlas/internal/interfaces/handlers/places"
	queryhandler "fit-atlas/internal/interfaces/handlers/query"
	"fit-atlas/internal/middleware"
	"fit-atlas/internal/observability/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Server is the wired application. DB and Redis are nil when not configured.
type Server struct {
	App       *fiber.App
	DB        *gorm.DB
	Redis     *redis.Client
	Index     *index.Index
	Refresher *catalogue.Refresher
	Query     *querysvc.Service
}

// CreateApp wires stores, services and routes. The catalogue starts empty;
// callers run Refresher.Refresh before serving traffic.
func CreateApp(cfg *config.Config) (*Server, error) {
	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var err error
		if db, err = database.Open(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, err
		}
	}
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		rdb = redis.NewClient(opt)
	}
	return Build(cfg, db, rdb)
}

// Build wires the application around already opened stores.
func Build(cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*Server, error) {
	metrics.Init()
	places, err := geo.Default()
	if err != nil {
		return nil, err
	}
	tariffs, err := tariff.Default()
	if err != nil {
		return nil, err
	}

	idx := index.New(nil)
	refresher := &catalogue.Refresher{Index: idx, Interval: cfg.RefreshInterval}
	switch {
	case cfg.CatalogueCSV != "":
		refresher.Loader = &catalogue.CSVLoader{Path: cfg.CatalogueCSV}
	case db != nil:
		refresher.Loader = &catalogue.GormLoader{DB: db}
	}

	svc := &querysvc.Service{
		Parser:         parser.New(places),
		Index:          idx,
		Engine:         financial.NewEngine(tariffs, places),
		Limit:          cfg.ResultLimit,
		SuggestTimeout: cfg.SuggestTimeout,
		FormatTimeout:  cfg.FormatTimeout,
	}
	var audits *querysvc.GormAudit
	if db != nil {
		audits = &querysvc.GormAudit{DB: db}
		svc.Audit = audits
	}
	if rdb != nil {
		svc.Conversations = &querysvc.RedisConversations{RDB: rdb, TTL: cfg.ConversationTTL}
	}
	if cfg.VectorStoreURL != "" {
		svc.Suggester = &querysvc.VectorStoreClient{URL: cfg.VectorStoreURL}
	}
	if cfg.FormatterURL != "" {
		svc.Formatter = &querysvc.FormatterClient{URL: cfg.FormatterURL}
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix:  cfg.FrontendURLEndsWith,
		AllowLocalhost: !cfg.IsProduction() || cfg.AllowCrossSiteDev,
	}))
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())
	app.Use(middleware.HealthMarker(rdb))
	app.Use(middleware.Session())

	collector := &healthsvc.Collector{
		Redis:     rdb,
		Catalogue: refresher,
		Probes: []healthsvc.Probe{
			{Name: "vector_store", URL: cfg.VectorStoreURL},
			{Name: "formatter", URL: cfg.FormatterURL},
		},
	}
	if db != nil {
		collector.DB = &gormDBPinger{db: db}
	}
	admin := middleware.RequireAdminKey(cfg.AdminKey)

	hh := &healthhandler.Handlers{Rdb: rdb, Collector: collector}
	app.Get("/", hh.Dashboard)
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Post("/health/reset", admin, hh.Reset)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1")

	qh := &queryhandler.Handlers{Service: svc, Audits: audits}
	api.Post("/query", qh.Query)
	api.Post("/query/parse", qh.Parse)
	api.Post("/query/export", qh.Export)
	api.Get("/query/audits", admin, qh.RecentAudits)
	api.Get("/assets/:id", qh.Asset)

	ph := &placeshandler.Handlers{Resolver: places}
	api.Get("/places", ph.List)
	api.Get("/places/:name", ph.Resolve)

	ch := &cataloguehandler.Handlers{Refresher: refresher}
	api.Get("/catalogue/status", ch.Status)
	api.Post("/catalogue/refresh", admin, ch.Refresh)

	return &Server{App: app, DB: db, Redis: rdb, Index: idx, Refresher: refresher, Query: svc}, nil
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
