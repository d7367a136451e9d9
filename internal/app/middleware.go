package app

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/utils"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"
	"github.com/rs/xid"

	"savecsv/internal/handlers"
	"savecsv/internal/metrics"
	u "savecsv/internal/utils"
)

// newRateLimitStore prefers Redis and falls back to process memory when the
// address is unset or the connection check panics.
func newRateLimitStore(cfg u.Config) (store fiber.Storage) {
	store = memoryStorage.New()
	if cfg.Redis.Addr == "" {
		return store
	}

	defer func() {
		if r := recover(); r != nil {
			u.Error("Redis limiter store init panicked, falling back to memory", "panic", r)
		}
	}()
	store = redisStorage.New(redisStorage.Config{
		Addrs:    []string{cfg.Redis.Addr},
		Database: cfg.Redis.RateLimitDB,
	})
	u.Info("Using Redis for rate limiting", "addr", cfg.Redis.Addr, "db", cfg.Redis.RateLimitDB)
	return store
}

func clientKey(c *fiber.Ctx) string {
	sum := sha256.Sum256([]byte(c.IP() + c.Get(fiber.HeaderUserAgent)))
	return hex.EncodeToString(sum[:])
}

// userRateLimitMiddleware limits requests per client (IP + User-Agent).
func userRateLimitMiddleware(cfg u.Config, store fiber.Storage) fiber.Handler {
	if cfg.RateLimiter.UserLimit <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	return limiter.New(limiter.Config{
		Max:               cfg.RateLimiter.UserLimit,
		Expiration:        cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           store,
		KeyGenerator:      clientKey,
		Next: func(c *fiber.Ctx) bool {
			// preflights never count
			return c.Method() == fiber.MethodOptions
		},
		LimitReached: func(c *fiber.Ctx) error {
			u.Warn("Rate limit exceeded", "user", clientKey(c), "path", c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too Many Requests",
			})
		},
	})
}

// observeMiddleware logs each request once it completes and feeds the HTTP
// metrics. Errors are rendered here so the final status is known.
func observeMiddleware(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if hErr := c.App().ErrorHandler(c, err); hErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		status := c.Response().StatusCode()
		elapsed := time.Since(start)

		// label values outlive the request; fasthttp reuses the method buffer
		method := utils.CopyString(c.Method())
		path := utils.CopyString(c.Route().Path)
		if path == "" || path == "/" {
			path = "unmatched"
		}
		m.ObserveHTTPRequest(method, path, status, elapsed)
		u.Info("Request handled",
			"method", method,
			"path", c.Path(),
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", handlers.RequestID(c),
		)
		return nil
	}
}

// RegisterMiddleware attaches global middleware to the app
func RegisterMiddleware(app *fiber.App, cfg u.Config, m *metrics.Metrics) {
	app.Use(fiberrecover.New(fiberrecover.Config{EnableStackTrace: true}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(observeMiddleware(m))

	app.Use(healthcheck.New())

	if cfg.RateLimiter.EnableUserLimiter && cfg.RateLimiter.UserLimit > 0 {
		app.Use(userRateLimitMiddleware(cfg, newRateLimitStore(cfg)))
	}
}
