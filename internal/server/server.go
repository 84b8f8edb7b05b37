package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ixlab/aibox/config"
	"github.com/ixlab/aibox/internal/auth"
	"github.com/ixlab/aibox/internal/llm"
	"github.com/ixlab/aibox/internal/llm/bedrock"
	"github.com/ixlab/aibox/internal/llm/gemini"
	"github.com/ixlab/aibox/internal/service"
	"github.com/ixlab/aibox/internal/settings"
	"github.com/ixlab/aibox/session"
	"github.com/ixlab/aibox/session/dynamo"
	"github.com/ixlab/aibox/session/inmemory"
	sessredis "github.com/ixlab/aibox/session/redis"
)

// Run wires the full service and blocks serving HTTP.
func Run(cfg *config.Config) error {
	ctx := context.Background()
	e := newEcho(cfg)

	store, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	settingsClient, err := dynamo.NewClient(ctx, cfg.AWS.DefaultRegion)
	if err != nil {
		return err
	}
	catalog := settings.NewCatalog(settingsClient, cfg.Database.SettingTable)

	bedrockClient, err := bedrock.NewRuntimeClient(ctx, cfg.Bedrock.Region)
	if err != nil {
		return err
	}
	geminiKey := ""
	if cfg.Gemini.SecretID != "" {
		secrets, err := gemini.NewSecretsClient(ctx, cfg.AWS.DefaultRegion)
		if err != nil {
			return err
		}
		geminiKey, err = gemini.FetchAPIKey(ctx, secrets, cfg.Gemini.SecretID)
		if err != nil {
			return err
		}
	}

	factory := service.NewFactory(service.Deps{
		Store:           store,
		Catalog:         catalog,
		BedrockConverse: bedrockClient,
		BedrockInvoke:   bedrockClient,
		GeminiAPIKey:    geminiKey,
		DataDir:         cfg.Storage.DataDir,
		TokenBudget:     cfg.Chat.TokenBudget,
		Chat:            cfg.Chat,
	})

	cognito, err := auth.NewCognitoClient(ctx, cfg.AWS.DefaultRegion)
	if err != nil {
		return err
	}
	secret := []byte(cfg.Security.SecretKey)

	ah := &AuthHandler{
		Auth:     auth.NewAuthenticator(cognito, cfg.AWS.UserPoolID, cfg.AWS.ClientID),
		Secret:   secret,
		TokenTTL: cfg.Security.TokenExpiration,
	}
	ah.Register(e)

	api := e.Group("/api")
	api.Use(auth.EchoMiddleware(secret))
	ah.RegisterProtected(api)

	(&SessionsHandler{Store: store}).Register(api.Group("/sessions"))
	(&ChatHandler{Chat: factory.Chat()}).Register(api.Group("/chat"))
	(&GenHandler{Gen: factory.Gen()}).Register(api.Group("/gen"))
	(&DrawHandler{Draw: factory.Draw()}).Register(api.Group("/draw"))
	(&ModelsHandler{Catalog: catalog}).Register(api.Group("/models"))

	log.Printf("listening on %s", cfg.Server.Addr())
	return e.Start(cfg.Server.Addr())
}

// newEcho builds the echo instance with the shared middleware and the unified
// error handler.
func newEcho(cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code, msg := statusFor(err)
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.CORS.AllowOrigins,
		AllowMethods:     cfg.CORS.AllowMethods,
		AllowHeaders:     cfg.CORS.AllowHeaders,
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// statusFor maps domain errors onto HTTP status codes and user-facing
// messages.
func statusFor(err error) (int, string) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, fmt.Sprint(httpErr.Message)
	}
	if errors.Is(err, session.ErrNotFound) {
		return http.StatusNotFound, "session not found"
	}
	if errors.Is(err, settings.ErrNotFound) {
		return http.StatusNotFound, "model not found"
	}
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return http.StatusUnauthorized, "invalid credentials"
	}

	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		providerErrorsTotal.WithLabelValues(string(pe.Code)).Inc()
		msg := llm.UserMessage(err)
		switch pe.Code {
		case llm.CodeRateLimited:
			return http.StatusTooManyRequests, msg
		case llm.CodeInvalidInput:
			return http.StatusBadRequest, msg
		case llm.CodeUpstreamTimeout:
			return http.StatusGatewayTimeout, msg
		case llm.CodeModelUnavailable:
			return http.StatusServiceUnavailable, msg
		case llm.CodeUnauthorized:
			return http.StatusBadGateway, msg
		}
		return http.StatusInternalServerError, msg
	}
	return http.StatusInternalServerError, err.Error()
}

func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	retention := cfg.Database.Retention()
	switch session.StoreType(cfg.Session.Backend) {
	case session.DynamoStore:
		client, err := dynamo.NewClient(ctx, cfg.AWS.DefaultRegion)
		if err != nil {
			return nil, err
		}
		return dynamo.NewStore(client, cfg.Database.SessionTable, retention), nil
	case session.RedisStore:
		rdb := goredis.NewClient(&goredis.Options{
			Addr:         cfg.Session.Redis.Host + ":" + cfg.Session.Redis.Port,
			Password:     cfg.Session.Redis.Password,
			DB:           cfg.Session.Redis.DB,
			DialTimeout:  cfg.Session.Redis.Timeout,
			ReadTimeout:  cfg.Session.Redis.Timeout,
			WriteTimeout: cfg.Session.Redis.Timeout,
		})
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Session.Redis.Timeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return sessredis.NewStore(rdb, retention), nil
	case session.InMemoryStore:
		return inmemory.NewStore(retention), nil
	}
	return nil, fmt.Errorf("unsupported session backend %q", cfg.Session.Backend)
}
