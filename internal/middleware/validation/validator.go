package validation

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type Config struct {
	MaxMessageLength int
	Logger           *zap.Logger
}

// Middleware rejects structurally invalid chat and ingest requests before
// they reach the pipelines.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 2000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		path := c.Path()

		switch {
		case strings.HasSuffix(path, "/chat"):
			var req struct {
				Slug    string `json:"slug"`
				Message string `json:"message"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON body",
				})
			}

			if req.Slug != "" && !slugPattern.MatchString(req.Slug) {
				cfg.Logger.Warn("Rejected malformed slug",
					zap.String("ip", c.IP()),
					zap.String("slug", req.Slug),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid slug format",
				})
			}

			if len(req.Message) > cfg.MaxMessageLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Message exceeds maximum length",
				})
			}

		case strings.HasSuffix(path, "/admin/ingest"):
			var req struct {
				Slug string `json:"slug"`
				URL  string `json:"url"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON body",
				})
			}

			if req.URL != "" && !isCrawlableURL(req.URL) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid URL format",
				})
			}
		}

		return c.Next()
	}
}

// isCrawlableURL accepts http(s) URLs and scheme-less host names, which the
// crawler normalizes to https.
func isCrawlableURL(raw string) bool {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
