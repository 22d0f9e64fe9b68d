package routes

import (
	"errors"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/kvstash/kvstash/internal/cache"
	"github.com/kvstash/kvstash/internal/server/reply"
	"github.com/kvstash/kvstash/internal/version"
)

// CachedDemoVary 是 /diagnostic/cached 参与缓存 key 的参数。
var CachedDemoVary = []string{"vary_key", "vary_key2"}

// DiagnosticsOptions 提供诊断接口需要的进程信息。
type DiagnosticsOptions struct {
	StartedAt  time.Time
	ListenPort int
	// Decorator 为空时不注册 /diagnostic/cached。
	Decorator *cache.Decorator
}

// RegisterDiagnosticRoutes 暴露健康检查、echo 与缓存演示接口。
func RegisterDiagnosticRoutes(app *fiber.App, opts DiagnosticsOptions) {
	if app == nil {
		return
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}

	status := func(c fiber.Ctx) error {
		machine, _ := os.Hostname()
		c.Set("X-Robots-Tag", "noindex")
		return reply.Send(c, reply.JSON(fiber.Map{
			"machine_name":        machine,
			"version":             version.Full(),
			"process_start_time":  opts.StartedAt.Format(time.RFC3339),
			"process_uptime_secs": int64(time.Since(opts.StartedAt).Seconds()),
			"server_port":         opts.ListenPort,
		}))
	}
	app.Get("/", status)
	app.Get("/diag", status)
	app.Get("/diagnostic", status)

	app.Get("/diagnostic/echo", func(c fiber.Ctx) error {
		return reply.Send(c, reply.JSON(firstValues(c, reply.CallbackParam)))
	})

	app.Get("/diagnostic/fail", func(c fiber.Ctx) error {
		return errors.New("test exception so you know how the app behaves")
	})

	if opts.Decorator != nil {
		app.Get("/diagnostic/cached", opts.Decorator.Wrap(func(c fiber.Ctx) error {
			return reply.Send(c, reply.JSON(fiber.Map{
				"value":        uuid.NewString(),
				"generated_at": time.Now().UTC().Format(time.RFC3339Nano),
			}))
		}, cache.Options{VaryBy: CachedDemoVary}))
	}

	echoHeaders := func(c fiber.Ctx) error {
		var headers [][2]string
		c.Request().Header.VisitAll(func(key, value []byte) {
			headers = append(headers, [2]string{string(key), string(value)})
		})
		return reply.Send(c, reply.JSON(headers))
	}
	app.Get("/echo", echoHeaders)
	app.Post("/echo", echoHeaders)
}
