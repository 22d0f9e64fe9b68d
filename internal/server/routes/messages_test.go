package routes

import (
	"net/http"
	"testing"
)

func TestLocalPublishJSON(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodPost, "/message/local_publish", "application/json", []byte(`{"source": "test", "n": 1}`))
	if resp.status != http.StatusOK || resp.body != `{"message": "ok"}` {
		t.Fatalf("publish failed: %d %s", resp.status, resp.body)
	}
	if got := env.messages.String(); got != "{\"source\":\"test\",\"n\":1}\n" {
		t.Fatalf("unexpected published message %q", got)
	}
}

func TestLocalPublishForm(t *testing.T) {
	env := newTestEnv(t, 0)

	env.do(t, http.MethodPost, "/message/local_publish", "application/x-www-form-urlencoded", []byte("event=login&count=2"))
	if got := env.messages.String(); got != "{\"count\":2,\"event\":\"login\"}\n" {
		t.Fatalf("unexpected published message %q", got)
	}
}

func TestLocalPublishRejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.do(t, http.MethodPost, "/message/local_publish", "application/json", []byte(`{nope`))
	if resp.status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.status)
	}
	if env.messages.Len() != 0 {
		t.Fatalf("nothing should be published")
	}
}
