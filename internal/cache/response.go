package cache

import (
	"encoding/json"
	"fmt"
	"net/textproto"

	"github.com/gofiber/fiber/v3"
)

// cachedResponse 是 Decorator 写入缓存的 payload：状态码、可重放的头部与正文。
type cachedResponse struct {
	Status  int         `json:"status"`
	Headers [][2]string `json:"headers,omitempty"`
	Body    []byte      `json:"body"`
}

// volatileHeaders 每次请求都会重新生成，不参与缓存重放。
var volatileHeaders = map[string]struct{}{
	"Content-Length":    {},
	"Date":              {},
	"Server":            {},
	"Expires":           {},
	"Set-Cookie":        {},
	"Connection":        {},
	"Transfer-Encoding": {},
	"X-Request-Id":      {},
}

func isVolatileHeader(name string) bool {
	_, ok := volatileHeaders[textproto.CanonicalMIMEHeaderKey(name)]
	return ok
}

// captureResponse 将 handler 已写入 Fiber 上下文的响应序列化为缓存 payload。
func captureResponse(c fiber.Ctx) ([]byte, error) {
	resp := c.Response()
	captured := cachedResponse{
		Status: resp.StatusCode(),
		Body:   append([]byte(nil), resp.Body()...),
	}
	resp.Header.VisitAll(func(key, value []byte) {
		name := string(key)
		if isVolatileHeader(name) {
			return
		}
		captured.Headers = append(captured.Headers, [2]string{name, string(value)})
	})
	return json.Marshal(captured)
}

// replayResponse 将缓存 payload 还原到当前响应。
func replayResponse(c fiber.Ctx, payload []byte) error {
	var captured cachedResponse
	if err := json.Unmarshal(payload, &captured); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if captured.Status == 0 {
		captured.Status = fiber.StatusOK
	}
	c.Status(captured.Status)
	for _, header := range captured.Headers {
		c.Set(header[0], header[1])
	}
	return c.Send(captured.Body)
}
