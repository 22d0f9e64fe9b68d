package routes

import (
	"bytes"
	"encoding/json"

	"github.com/gofiber/fiber/v3"

	"github.com/kvstash/kvstash/internal/messages"
	"github.com/kvstash/kvstash/internal/server/reply"
)

// RegisterMessageRoutes 挂载 POST /message/local_publish。
func RegisterMessageRoutes(app *fiber.App, publisher *messages.Publisher) {
	if app == nil || publisher == nil {
		return
	}

	app.Post("/message/local_publish", func(c fiber.Ctx) error {
		var doc []byte
		if isJSONContentType(requestContentType(c)) {
			var buf bytes.Buffer
			if err := json.Compact(&buf, c.Body()); err != nil {
				return reply.Send(c, reply.Message("invalid json").WithStatus(fiber.StatusBadRequest))
			}
			doc = buf.Bytes()
		} else {
			encoded, err := valuesAsJSON(c)
			if err != nil {
				return err
			}
			doc = encoded
		}

		if err := publisher.PublishRaw(doc); err != nil {
			return err
		}
		return reply.Send(c, reply.Message("ok"))
	})
}
