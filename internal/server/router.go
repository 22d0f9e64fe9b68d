package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"github.com/kvstash/kvstash/internal/logging"
)

// DefaultUserToken is used when the request carries no user header.
const DefaultUserToken = "DEFAULT"

// Identity is echoed on every response through X-HOSTNAME / X-APP-VERSION.
type Identity struct {
	Hostname   string
	AppVersion string
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger         *logrus.Logger
	Identity       Identity
	UserHeaderName string
}

const (
	contextKeyRequestID = "_kvstash_request_id"
	contextKeyUserToken = "_kvstash_user_token"
)

// NewApp builds a Fiber application with the shared middleware chain and
// structured error handling. Routes are registered by the caller.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(opts.UserHeaderName) == "" {
		opts.UserHeaderName = "Uid"
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		UnescapePath:  true,
		ErrorHandler:  newErrorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))
	app.Use(globalHeadersMiddleware(opts.Identity))

	return app, nil
}

// requestContextMiddleware 生成请求 ID、解析用户标识，并在请求结束后输出访问日志。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		token := DefaultUserToken
		if raw := c.Get(opts.UserHeaderName); raw != "" {
			token = SanitizeUserToken(raw)
		}
		c.Locals(contextKeyUserToken, token)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusForError(err)
		}
		fields := logging.RequestFields(c.Method(), c.Path(), status, reqID, token)
		fields["action"] = "request"
		fields["elapsed_ms"] = time.Since(started).Milliseconds()
		opts.Logger.WithFields(fields).Debug("request handled")

		return err
	}
}

// globalHeadersMiddleware 在 handler 之后写入全局响应头，缓存重放的响应也会带上当前值。
func globalHeadersMiddleware(identity Identity) fiber.Handler {
	return func(c fiber.Ctx) error {
		err := c.Next()

		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" {
			origin = "*"
		}
		c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
		c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
		c.Set("X-HOSTNAME", identity.Hostname)
		c.Set("X-APP-VERSION", identity.AppVersion)

		return err
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// UserToken returns the sanitized user token for the request.
func UserToken(c fiber.Ctx) string {
	if value := c.Locals(contextKeyUserToken); value != nil {
		if token, ok := value.(string); ok {
			return token
		}
	}
	return DefaultUserToken
}

// SanitizeUserToken reduces a header value to a name that is safe to use as a
// file name: ASCII letters, digits, '_', '.', '-'. Accented letters are
// decomposed to their ASCII base, whitespace and path separators become '_',
// and leading or trailing '.' / '_' are dropped.
func SanitizeUserToken(raw string) string {
	raw = norm.NFKD.String(raw)
	raw = strings.NewReplacer("/", " ", "\\", " ").Replace(raw)
	joined := strings.Join(strings.Fields(raw), "_")

	var b strings.Builder
	for _, r := range joined {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	token := strings.Trim(b.String(), "._")
	if token == "" {
		return DefaultUserToken
	}
	return token
}
