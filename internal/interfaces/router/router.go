package router

import (
	catalogsvc "giftmarket/internal/application/catalog"
	listsvc "giftmarket/internal/application/listings"
	"giftmarket/internal/config"
	"giftmarket/internal/infrastructure/database"
	authhandler "giftmarket/internal/interfaces/handlers/auth"
	cataloghandler "giftmarket/internal/interfaces/handlers/catalog"
	healthhandler "giftmarket/internal/interfaces/handlers/health"
	markethandler "giftmarket/internal/interfaces/handlers/markets"
	userhandler "giftmarket/internal/interfaces/handlers/user"
	"giftmarket/internal/middleware"
	"giftmarket/internal/pkg/cache"
	"giftmarket/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CreateApp wires the full API: middleware chain, services, and routes.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix: cfg.FrontendSuffix,
	}))

	sessionHandler, rdb, err := middleware.Session(middleware.SessionConfig{
		Secret:       cfg.SessionSecret,
		RedisURL:     cfg.RedisURL,
		IsProduction: cfg.Env == "production",
	})
	if err != nil {
		return nil, nil, nil, err
	}
	app.Use(sessionHandler)
	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}

	sessionCfg := middleware.SessionConfig{
		Secret:       cfg.SessionSecret,
		RedisURL:     cfg.RedisURL,
		IsProduction: cfg.Env == "production",
	}
	store := cache.NewRedis(rdb)

	catalogSvc := &catalogsvc.Service{DB: db}
	listingSvc := &listsvc.Service{
		DB:    db,
		Index: catalogSvc,
		Cache: store,
		Limits: validation.Limits{
			AskPriceFloor: cfg.AskPriceFloor,
			BidPriceFloor: cfg.BidPriceFloor,
			NotesMaxLen:   cfg.NotesMaxLen,
			QtyPerPost:    cfg.QtyPerPost,
		},
		AsksCap: cfg.LiveAsksPerItem,
	}

	hh := &healthhandler.Handlers{DB: db, Redis: rdb}
	app.Get("/api/v1/health", hh.Status)

	ah := &authhandler.Handlers{DB: db, SessionCfg: sessionCfg, Redis: rdb, Cache: store}
	ag := app.Group("/api/v1/auth")
	ag.Post("/register", ah.Register)
	ag.Post("/login", ah.Login)
	ag.Get("/me", ah.Me)
	ag.Post("/logout", ah.Logout)

	ch := &cataloghandler.Handlers{Service: catalogSvc}
	cg := app.Group("/api/v1/catalog")
	cg.Get("/", ch.List)
	cg.Get("/:slug", ch.Get)

	mh := &markethandler.Handlers{Service: listingSvc}
	mg := app.Group("/api/v1/markets")
	mg.Get("/", mh.List)
	mg.Get("/summary", middleware.RequireAuth(), mh.Summary)
	mg.Get("/:id/events", middleware.RequireAuth(), mh.Events)
	mg.Get("/:id", middleware.RequireAuth(), mh.Get)
	mg.Post("/", middleware.RequireAuth(), mh.Create)
	mg.Patch("/:id", middleware.RequireAuth(), mh.UpdateStatus)

	uh := &userhandler.Handlers{DB: db, Listings: listingSvc, Cache: store}
	ug := app.Group("/api/v1/users")
	ug.Get("/me", middleware.RequireAuth(), uh.Me)
	ug.Get("/:id", uh.Get)

	return app, db, rdb, nil
}
