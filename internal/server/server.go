package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/resumechat/resumechat/config"
	"github.com/resumechat/resumechat/internal/agent"
	"github.com/resumechat/resumechat/internal/catalog"
	"github.com/resumechat/resumechat/internal/runtime"
	"github.com/resumechat/resumechat/internal/store"
)

// Run wires the service and serves HTTP until the listener fails.
func Run(cfg *appconfig.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	registerDocs(e)
	if cfg.Telemetry.Enabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	ctx := context.Background()

	dsn, err := runtime.BuildPostgresDSN(cfg)
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	st, err := store.New(ctx, dsn)
	if err != nil {
		return err
	}

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	capability, err := agent.NewCapability(cfg.LLM)
	if err != nil {
		return err
	}
	exec := catalog.NewExecutor(st, log.New(log.Writer(), "[CATALOG] ", log.LstdFlags))
	asm := agent.NewAssembler(st, capability, cfg.Context, log.New(log.Writer(), "[AGENT] ", log.LstdFlags))
	engine := agent.NewEngine(st, exec, capability, asm, cfg.Agent, log.New(log.Writer(), "[AGENT] ", log.LstdFlags))

	api := e.Group("/api")

	auth := &AuthHandler{Store: st, Secret: secret, TokenTTL: cfg.Server.TokenTTL}
	auth.Register(api.Group("/auth"))

	me := api.Group("/me")
	me.Use(runtime.EchoAuthMiddleware(secret))
	me.GET("", func(c echo.Context) error {
		return c.JSON(200, MeResponse{UserID: c.Get("user_id").(string)})
	})

	ch := &ChatHandler{Store: st, Engine: engine}
	ch.Register(api.Group("/chat"), secret)

	sh := &SessionsHandler{Store: st, MaxPageSize: cfg.Server.HistoryMaxPage}
	sh.Register(api.Group("/chat/sessions"), secret)

	rh := &ResumeHandler{Store: st, MaxPageSize: cfg.Server.HistoryMaxPage}
	rh.Register(api.Group("/resume"), secret)

	// idle-session sweep with redis lock across instances
	var rdb *redis.Client
	if cfg.Storage.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
		}
	}
	sweeper := &Sweeper{
		Store: st,
		Rdb:   rdb,
		Cron:  cfg.Server.SweepCron,
		Idle:  cfg.Server.SessionIdle,
		Stop:  make(chan struct{}),
	}
	sweeper.Start()

	if addr == "" {
		addr = cfg.Server.Address
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":10001"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
