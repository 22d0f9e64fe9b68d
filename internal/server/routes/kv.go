package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/kvstash/kvstash/internal/kvstore"
	"github.com/kvstash/kvstash/internal/server/reply"
)

// MultiKeyPrefix 标记批量读写的保留路径段。
const MultiKeyPrefix = "__multikey__"

const noDataMessage = "no data for key"

// KeyValueStore 是 kv 路由依赖的存储能力，*kvstore.TieredStore 满足该接口。
type KeyValueStore interface {
	Store(ctx context.Context, key string, body []byte, contentType string) error
	Read(ctx context.Context, key string) (*kvstore.Value, error)
	Delete(ctx context.Context, key string) error
	ReadMany(ctx context.Context, keys []string) (*kvstore.Batch, error)
}

type kvHandlers struct {
	store KeyValueStore
}

// RegisterKVRoutes 挂载 /kv/* 读写接口；批量路由需先于通配路由注册。
func RegisterKVRoutes(app *fiber.App, store KeyValueStore) {
	if app == nil || store == nil {
		return
	}
	h := &kvHandlers{store: store}

	app.Get("/kv/"+MultiKeyPrefix+"/*", h.getMany)
	app.Post("/kv/"+MultiKeyPrefix, h.storeMany)

	app.Options("/kv/*", h.preflight)
	app.Post("/kv/*", h.storeOne)
	app.Get("/kv/*", h.getOne)
	app.Delete("/kv/*", h.deleteOne)
}

func (h *kvHandlers) storeOne(c fiber.Ctx) error {
	key := c.Params("*")
	contentType := string(c.Request().Header.ContentType())
	normalized := requestContentType(c)
	body := c.Body()

	var payload []byte
	switch {
	case isJSONContentType(normalized):
		var buf bytes.Buffer
		if err := json.Compact(&buf, body); err != nil {
			return reply.Send(c, reply.Message("invalid json").WithStatus(fiber.StatusBadRequest))
		}
		payload = buf.Bytes()
	case isFormContentType(normalized) || len(body) == 0:
		encoded, err := valuesAsJSON(c)
		if err != nil {
			return err
		}
		payload = encoded
		contentType = fiber.MIMEApplicationJSON
	default:
		payload = append([]byte(nil), body...)
	}

	if err := h.store.Store(c.Context(), key, payload, contentType); err != nil {
		return err
	}
	return reply.Send(c, reply.Message("ok"))
}

func (h *kvHandlers) getOne(c fiber.Ctx) error {
	key := c.Params("*")
	addCORS(c)

	value, err := h.store.Read(c.Context(), key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return reply.Send(c, missReply(c))
	}
	if err != nil {
		return err
	}

	c.Set("X-File-Path", key)
	return reply.Send(c, reply.Raw(value.ContentType, value.Body))
}

func (h *kvHandlers) deleteOne(c fiber.Ctx) error {
	if err := h.store.Delete(c.Context(), c.Params("*")); err != nil {
		return err
	}
	return reply.Send(c, reply.Message("ok"))
}

func (h *kvHandlers) preflight(c fiber.Ctx) error {
	addCORS(c)
	return c.SendStatus(fiber.StatusOK)
}

// getMany 读取 /kv/__multikey__/k1/k2/...，JSON 值原样嵌入，其余值作为字符串输出。
func (h *kvHandlers) getMany(c fiber.Ctx) error {
	addCORS(c)

	var keys []string
	for _, key := range strings.Split(c.Params("*"), "/") {
		if key != "" {
			keys = append(keys, key)
		}
	}

	batch, err := h.store.ReadMany(c.Context(), keys)
	if errors.Is(err, kvstore.ErrNotFound) {
		return reply.Send(c, missReply(c))
	}
	if err != nil {
		return err
	}

	values := make(map[string]any, batch.Len())
	for _, key := range batch.Keys {
		value := batch.Values[key]
		if isJSONContentType(strings.ToLower(value.ContentType)) && json.Valid(value.Body) {
			values[key] = json.RawMessage(value.Body)
			continue
		}
		values[key] = string(value.Body)
	}
	return reply.Send(c, reply.JSON(values))
}

// storeMany 处理 POST /kv/__multikey__：JSON 对象的每个成员以紧凑 JSON 存储；
// 表单请求的每个字段以请求 Content-Type 存储。
func (h *kvHandlers) storeMany(c fiber.Ctx) error {
	ctx := c.Context()
	normalized := requestContentType(c)

	if isJSONContentType(normalized) {
		var members map[string]json.RawMessage
		if err := json.Unmarshal(c.Body(), &members); err != nil {
			return reply.Send(c, reply.Message("invalid json").WithStatus(fiber.StatusBadRequest))
		}
		for key, raw := range members {
			var buf bytes.Buffer
			if err := json.Compact(&buf, raw); err != nil {
				return err
			}
			if err := h.store.Store(ctx, key, buf.Bytes(), fiber.MIMEApplicationJSON); err != nil {
				return err
			}
		}
		return reply.Send(c, reply.Message("ok"))
	}

	contentType := string(c.Request().Header.ContentType())
	for key, value := range firstValues(c) {
		if err := h.store.Store(ctx, key, []byte(value), contentType); err != nil {
			return err
		}
	}
	return reply.Send(c, reply.Message("ok"))
}

// missReply 返回未命中的响应：默认 404，return404=false 时为 200；JSONP 的降级由 reply.Send 处理。
func missReply(c fiber.Ctx) reply.Reply {
	r := reply.Message(noDataMessage)
	if c.Query("return404") == "false" {
		return r
	}
	return r.WithStatus(fiber.StatusNotFound)
}

func addCORS(c fiber.Ctx) {
	c.Set(fiber.HeaderAccessControlAllowMethods, "POST, GET, OPTIONS")
	allowHeaders := c.Get(fiber.HeaderAccessControlRequestHeaders)
	if allowHeaders == "" {
		allowHeaders = "*"
	}
	c.Set(fiber.HeaderAccessControlAllowHeaders, allowHeaders)
}
