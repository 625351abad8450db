package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/sifan077/EphemURL/internal/app/model"
	"github.com/sifan077/EphemURL/internal/app/service"
	httpUtil "github.com/sifan077/EphemURL/internal/http/util"
	"go.uber.org/zap"
)

// Resolver looks up live mappings.
type Resolver interface {
	Resolve(ctx context.Context, key string) (*model.Mapping, error)
}

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger   *zap.Logger
	Resolver Resolver
	// Shortener serves GET /{domain} when SingleEndpoint is set.
	Shortener      *ShortenHandler
	SingleEndpoint bool
}

// RedirectHandler implements GET /{key}.
type RedirectHandler struct {
	logger         *zap.Logger
	resolver       Resolver
	shortener      *ShortenHandler
	singleEndpoint bool
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:         logger,
		resolver:       deps.Resolver,
		shortener:      deps.Shortener,
		singleEndpoint: deps.SingleEndpoint && deps.Shortener != nil,
	}
}

// Register wires redirect routes onto the provided router. It must come after
// every fixed GET route since /:key matches any single segment. In
// single-endpoint mode guards apply to the shortening branch only.
func (h *RedirectHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	if !h.singleEndpoint {
		router.Get("/:key", h.Resolve)
		return
	}

	handlers := make([]fiber.Handler, 0, len(guards)+1)
	for _, guard := range guards {
		handlers = append(handlers, domainsOnly(guard))
	}
	handlers = append(handlers, h.Dispatch)
	router.Get("/:key", handlers...)
}

// Resolve handles GET /:key.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	key := c.Params("key")

	mapping, err := h.resolver.Resolve(c.UserContext(), key)
	if err != nil {
		if !errors.Is(err, service.ErrNotFound) {
			h.logger.Error("failed to resolve key", zap.String("key", key), zap.Error(err))
		}
		return writeError(c, err)
	}

	location := service.TargetLocation(mapping)
	h.logger.Debug("redirecting short link", zap.String("key", key), zap.String("target", location))
	return c.Redirect(location, fiber.StatusFound)
}

// Dispatch handles GET /:value in single-endpoint mode: values that look like
// a domain are shortened, anything else is resolved as a key.
func (h *RedirectHandler) Dispatch(c *fiber.Ctx) error {
	value := c.Params("key")
	if httpUtil.LooksLikeDomain(value) {
		return h.shortener.shorten(c, utils.CopyString(value))
	}
	return h.Resolve(c)
}

func domainsOnly(guard fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if httpUtil.LooksLikeDomain(c.Params("key")) {
			return guard(c)
		}
		return c.Next()
	}
}
