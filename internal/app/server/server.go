package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/EphemURL/config"
	inthttp "github.com/sifan077/EphemURL/internal/http/handler"
	"github.com/sifan077/EphemURL/internal/http/middleware"
	"go.uber.org/zap"
)

const (
	readTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	bodyLimit    = 16 * 1024
)

// Dependencies bundles what the HTTP server needs.
type Dependencies struct {
	Logger    *zap.Logger
	App       config.App
	RateLimit config.RateLimitConfig
	Registrar inthttp.Registrar
	Resolver  inthttp.Resolver
	// Counter backs rate limiting of the shorten routes; nil disables it.
	Counter middleware.Counter
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "EphemURL",
		DisableStartupMessage: true,
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		BodyLimit:             bodyLimit,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(
		middleware.Recovery(s.deps.Logger),
		middleware.RequestID(),
		middleware.Logger(s.deps.Logger),
		middleware.CORS(),
	)
}

func (s *Server) registerRoutes() {
	var guards []fiber.Handler
	if s.deps.Counter != nil {
		guards = append(guards, middleware.RateLimit(s.deps.Counter, middleware.RateLimitConfig{
			MaxRequests: s.deps.RateLimit.MaxRequests,
			Window:      s.deps.RateLimit.Window,
		}, s.deps.Logger))
	}

	s.app.Get("/", inthttp.Health)
	s.app.Get("/health", inthttp.Health)

	shortenHandler := inthttp.NewShortenHandler(inthttp.ShortenDeps{
		Logger:      s.deps.Logger,
		Registrar:   s.deps.Registrar,
		BaseURL:     s.deps.App.BaseURL,
		DomainCheck: s.deps.App.DomainCheck,
	})
	shortenHandler.Register(s.app, guards...)

	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:         s.deps.Logger,
		Resolver:       s.deps.Resolver,
		Shortener:      shortenHandler,
		SingleEndpoint: s.deps.App.SingleEndpoint,
	})
	redirectHandler.Register(s.app, guards...)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}

	return c.Status(code).JSON(fiber.Map{"error": msg})
}
