package cache

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// ReloadParam 为非空时强制刷新缓存。
const ReloadParam = "_reload_cache"

// DefaultTTL 是未显式配置时的缓存时长。
const DefaultTTL = 900 * time.Second

// Options 描述单个被缓存视图的行为。
type Options struct {
	// VaryBy 按声明顺序拼接到 URL 之后组成缓存 key，顺序不同即为不同 key。
	VaryBy []string
	// TTL 为 0 时使用 Decorator 的默认值。
	TTL time.Duration
}

// Decorator 为 Fiber handler 增加按请求指纹的读穿透缓存。
type Decorator struct {
	cache      *FileCache
	logger     *logrus.Logger
	defaultTTL time.Duration
}

// NewDecorator 基于 FileCache 构建装饰器。
func NewDecorator(cache *FileCache, logger *logrus.Logger, defaultTTL time.Duration) (*Decorator, error) {
	if cache == nil {
		return nil, errors.New("file cache is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Decorator{cache: cache, logger: logger, defaultTTL: defaultTTL}, nil
}

// ComputeKey 生成缓存 key：未声明 vary 参数时直接使用 url；否则依次追加各参数的值，缺失参数贡献空串。
// url 按原样参与拼接，不做规范化。
func ComputeKey(url string, vary []string, lookup func(string) string) string {
	if len(vary) == 0 {
		return url
	}
	var b strings.Builder
	b.WriteString(url)
	for _, name := range vary {
		if lookup != nil {
			b.WriteString(lookup(name))
		}
	}
	return b.String()
}

// RequestValue 按 query 优先、表单其次的顺序读取请求参数。
func RequestValue(c fiber.Ctx, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return c.FormValue(name)
}

// Wrap 返回带缓存的 handler。命中有效缓存时重放响应并附加 Expires 头；新生成的响应不带 Expires。
func (d *Decorator) Wrap(next fiber.Handler, opts Options) fiber.Handler {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = d.defaultTTL
	}
	vary := append([]string(nil), opts.VaryBy...)

	return func(c fiber.Ctx) error {
		key := ComputeKey(c.BaseURL()+c.OriginalURL(), vary, func(name string) string {
			return RequestValue(c, name)
		})
		force := RequestValue(c, ReloadParam) != ""

		produced := false
		producer := func() ([]byte, error) {
			produced = true
			if err := next(c); err != nil {
				return nil, err
			}
			return captureResponse(c)
		}

		result, err := d.cache.GetOrPopulate(key, ttl, producer, force)
		if err != nil {
			return err
		}

		if !produced {
			if err := replayResponse(c, result.Payload); err != nil {
				d.logger.WithError(err).WithFields(logrus.Fields{
					"action": "cache_replay",
					"path":   c.Path(),
				}).Debug("cached response unreadable, regenerating")
				if result, err = d.cache.GetOrPopulate(key, ttl, producer, true); err != nil {
					return err
				}
			}
		}

		if result.Valid() {
			c.Set(fiber.HeaderExpires, result.Expires.UTC().Format(http.TimeFormat))
		}
		return nil
	}
}
