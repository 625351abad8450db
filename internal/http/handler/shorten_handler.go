package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/EphemURL/internal/app/model"
	httpUtil "github.com/sifan077/EphemURL/internal/http/util"
	"go.uber.org/zap"
)

// Registrar creates mappings.
type Registrar interface {
	Register(ctx context.Context, targetURL string) (*model.Mapping, error)
}

// ShortenDeps groups dependencies required by the shorten handler.
type ShortenDeps struct {
	Logger    *zap.Logger
	Registrar Registrar
	// BaseURL replaces the request's scheme://host in returned short URLs.
	BaseURL     string
	DomainCheck bool
}

// ShortenHandler implements POST /.
type ShortenHandler struct {
	logger      *zap.Logger
	registrar   Registrar
	baseURL     string
	domainCheck bool
}

// NewShortenHandler creates a shorten handler with the provided dependencies.
func NewShortenHandler(deps ShortenDeps) *ShortenHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShortenHandler{
		logger:      logger,
		registrar:   deps.Registrar,
		baseURL:     deps.BaseURL,
		domainCheck: deps.DomainCheck,
	}
}

// Register wires POST / behind the given guards (rate limiting).
func (h *ShortenHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	handlers := make([]fiber.Handler, 0, len(guards)+1)
	handlers = append(handlers, guards...)
	router.Post("/", append(handlers, h.Shorten)...)
}

// ShortenRequest is the body of POST /.
type ShortenRequest struct {
	URL string `json:"url"`
}

// Shorten handles POST / and responds with the short URL as plain text.
func (h *ShortenHandler) Shorten(c *fiber.Ctx) error {
	var req ShortenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	return h.shorten(c, req.URL)
}

func (h *ShortenHandler) shorten(c *fiber.Ctx, target string) error {
	if err := httpUtil.ValidateTarget(target, h.domainCheck); err != nil {
		return writeError(c, err)
	}

	mapping, err := h.registrar.Register(c.UserContext(), target)
	if err != nil {
		h.logger.Error("failed to register mapping", zap.Error(err), zap.Int("url_len", len(target)))
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).SendString(httpUtil.ShortURL(h.base(c), mapping.Key))
}

func (h *ShortenHandler) base(c *fiber.Ctx) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	return c.BaseURL()
}
