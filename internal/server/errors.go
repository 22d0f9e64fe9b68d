package server

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// newErrorHandler 将未处理的错误转换为 500 响应并记录 eid，便于按 eid 检索日志。
// fiber.Error（如未匹配路由）保留其状态码。
func newErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) && fiberErr.Code != fiber.StatusInternalServerError {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
		}

		eid := uuid.NewString()
		logger.WithError(err).WithFields(logrus.Fields{
			"action":     "unhandled_error",
			"eid":        eid,
			"method":     c.Method(),
			"path":       c.Path(),
			"request_id": RequestID(c),
		}).Error("unhandled exception")

		c.Status(fiber.StatusInternalServerError)
		if strings.Contains(string(c.Request().Header.ContentType()), "json") {
			return c.JSON(fiber.Map{"error": "internal_error", "eid": eid})
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(fmt.Sprintf("<html><body><h1>Internal Server Error</h1><p>eid: %s</p></body></html>", html.EscapeString(eid)))
	}
}

func statusForError(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}
	return fiber.StatusInternalServerError
}
