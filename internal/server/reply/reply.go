// Package reply 定义 handler 的返回值：JSON、纯状态码或原始正文，并统一处理 JSONP 包装。
package reply

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// CallbackParam 为非空时响应改写为 JSONP。
const CallbackParam = "callback"

// ContentTypeJavaScript 是 JSONP 响应使用的 Content-Type。
const ContentTypeJavaScript = "application/javascript"

type kind int

const (
	kindJSON kind = iota
	kindStatus
	kindRaw
)

// Reply 是 handler 产出的响应描述，由 Send 写回 Fiber 上下文。
type Reply struct {
	kind        kind
	status      int
	value       any
	contentType string
	body        []byte
}

// JSON 返回 200 + JSON 正文。
func JSON(v any) Reply {
	return Reply{kind: kindJSON, status: fiber.StatusOK, value: v}
}

// Message 是 {"message": ...} 形式的快捷写法。
func Message(msg string) Reply {
	return JSON(fiber.Map{"message": msg})
}

// Status 返回只有状态码的响应，正文为空 JSON 对象。
func Status(code int) Reply {
	return Reply{kind: kindStatus, status: code, value: fiber.Map{}}
}

// Raw 原样返回正文并使用给定 Content-Type。
func Raw(contentType string, body []byte) Reply {
	return Reply{kind: kindRaw, status: fiber.StatusOK, contentType: contentType, body: body}
}

// WithStatus 覆盖状态码。
func (r Reply) WithStatus(code int) Reply {
	r.status = code
	return r
}

// StatusCode 返回未经 JSONP 调整的状态码。
func (r Reply) StatusCode() int {
	return r.status
}

// Send 将 Reply 写入响应。请求带 callback 时正文改写为 callback(<body>); 且 404 降级为 200，
// 否则 JSONP 客户端的回调永远不会触发。
func Send(c fiber.Ctx, r Reply) error {
	callback := requestValue(c, CallbackParam)

	var (
		body        []byte
		contentType = r.contentType
		status      = r.status
	)
	if status == 0 {
		status = fiber.StatusOK
	}

	switch r.kind {
	case kindRaw:
		body = r.body
	default:
		encoded, err := Encode(r.value)
		if err != nil {
			return err
		}
		body = encoded
		contentType = fiber.MIMEApplicationJSON
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderPragma, "no-cache")
	}

	if callback != "" {
		wrapped := make([]byte, 0, len(callback)+len(body)+3)
		wrapped = append(wrapped, callback...)
		wrapped = append(wrapped, '(')
		wrapped = append(wrapped, body...)
		wrapped = append(wrapped, ");"...)
		body = wrapped
		contentType = ContentTypeJavaScript
		if status == fiber.StatusNotFound {
			status = fiber.StatusOK
		}
	}

	if contentType != "" {
		c.Set(fiber.HeaderContentType, contentType)
	}
	return c.Status(status).Send(body)
}

// Encode 输出 `{"k": "v", "n": 1}` 风格的 JSON（冒号与逗号后带空格），与既有客户端逐字节比较的格式保持一致。
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return spaceSeparators(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// spaceSeparators 在紧凑 JSON 的结构性 , 与 : 之后插入空格，字符串内部保持不变。
func spaceSeparators(compact []byte) []byte {
	out := make([]byte, 0, len(compact)+len(compact)/8)
	inString, escaped := false, false
	for _, b := range compact {
		out = append(out, b)
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case ',', ':':
			out = append(out, ' ')
		}
	}
	return out
}

func requestValue(c fiber.Ctx, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	if strings.Contains(string(c.Request().Header.ContentType()), "form") {
		return c.FormValue(name)
	}
	return ""
}
