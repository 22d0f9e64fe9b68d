package routes

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/kvstash/kvstash/internal/blobs"
	"github.com/kvstash/kvstash/internal/cache"
	"github.com/kvstash/kvstash/internal/kvstore"
	"github.com/kvstash/kvstash/internal/messages"
	"github.com/kvstash/kvstash/internal/records"
	"github.com/kvstash/kvstash/internal/server"
)

type testEnv struct {
	app      *fiber.App
	records  *records.Memory
	blobs    *blobs.Memory
	messages *bytes.Buffer
}

type testResponse struct {
	status int
	header http.Header
	body   string
}

func newTestEnv(t *testing.T, maxItemSize int64) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := server.NewApp(server.AppOptions{
		Logger:   logger,
		Identity: server.Identity{Hostname: "kv-test", AppVersion: "test"},
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	recordStore := records.NewMemory(maxItemSize)
	blobStore := blobs.NewMemory()
	store, err := kvstore.NewTieredStore(recordStore, blobStore, logger, kvstore.Options{})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	fileCache, err := cache.NewFileCache(t.TempDir(), cache.WithLogger(logger))
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	decorator, err := cache.NewDecorator(fileCache, logger, cache.DefaultTTL)
	if err != nil {
		t.Fatalf("failed to create decorator: %v", err)
	}

	published := &bytes.Buffer{}

	RegisterDiagnosticRoutes(app, DiagnosticsOptions{ListenPort: 5000, Decorator: decorator})
	RegisterMessageRoutes(app, messages.NewPublisher(published))
	RegisterKVRoutes(app, store)

	return &testEnv{app: app, records: recordStore, blobs: blobStore, messages: published}
}

func (e *testEnv) do(t *testing.T, method, target, contentType string, body []byte, headers ...string) testResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return testResponse{status: resp.StatusCode, header: resp.Header, body: string(data)}
}

func (e *testEnv) get(t *testing.T, target string, headers ...string) testResponse {
	t.Helper()
	return e.do(t, http.MethodGet, target, "", nil, headers...)
}
