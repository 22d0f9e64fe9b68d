package routes

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
)

// requestValues 合并 query 参数与表单字段（urlencoded / multipart），保留多值。
func requestValues(c fiber.Ctx) map[string][]string {
	values := make(map[string][]string)
	add := func(key, value string) {
		values[key] = append(values[key], value)
	}

	c.Request().URI().QueryArgs().VisitAll(func(key, value []byte) {
		add(string(key), string(value))
	})

	contentType := requestContentType(c)
	switch {
	case strings.HasPrefix(contentType, fiber.MIMEApplicationForm):
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			add(string(key), string(value))
		})
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		if form, err := c.MultipartForm(); err == nil {
			for key, vals := range form.Value {
				for _, v := range vals {
					add(key, v)
				}
			}
		}
	}
	return values
}

// convertValues 将请求参数转为 JSON 友好的结构：单元素列表折叠为标量，数字字符串转换为数字。
func convertValues(values map[string][]string) map[string]any {
	converted := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			converted[key] = convertNumber(vals[0])
			continue
		}
		list := make([]any, 0, len(vals))
		for _, v := range vals {
			list = append(list, convertNumber(v))
		}
		converted[key] = list
	}
	return converted
}

// convertNumber 依次尝试整数与浮点解析。含下划线或十六进制写法的字符串保持原样；
// 超出 int64 的十进制整数以 json.Number 原样输出，不丢精度；NaN/Inf 无法表示为 JSON，保持字符串。
func convertNumber(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.ContainsAny(trimmed, "_xXpP") {
		return value
	}
	i, err := strconv.ParseInt(trimmed, 10, 64)
	if err == nil {
		return i
	}
	if errors.Is(err, strconv.ErrRange) {
		return json.Number(strings.TrimPrefix(trimmed, "+"))
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return value
}

// valuesAsJSON 返回参数转换后的紧凑 JSON。
func valuesAsJSON(c fiber.Ctx) ([]byte, error) {
	values := requestValues(c)
	return json.Marshal(convertValues(values))
}

// firstValues 返回每个参数的第一个值，skip 中的参数被忽略。
func firstValues(c fiber.Ctx, skip ...string) map[string]string {
	values := requestValues(c)
	out := make(map[string]string, len(values))
	for key, vals := range values {
		if containsString(skip, key) || len(vals) == 0 {
			continue
		}
		out[key] = vals[0]
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func requestContentType(c fiber.Ctx) string {
	return strings.ToLower(strings.TrimSpace(string(c.Request().Header.ContentType())))
}

func isJSONContentType(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	mediaType = strings.TrimSpace(mediaType)
	return mediaType == fiber.MIMEApplicationJSON || strings.HasSuffix(mediaType, "+json")
}

func isFormContentType(contentType string) bool {
	return strings.HasPrefix(contentType, fiber.MIMEApplicationForm) ||
		strings.HasPrefix(contentType, fiber.MIMEMultipartForm)
}
