package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIncAndHandlerExposesCounter(t *testing.T) {
	Inc("Test Operator", "https://log.example/")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "certstream_messages_total") {
		t.Fatalf("expected exposition output to contain the messages counter, got: %s", body)
	}
}

func TestSetActiveSubscribersIsExposed(t *testing.T) {
	SetActiveSubscribers("websocket", 3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "certstream_active_subscribers") {
		t.Fatalf("expected the active subscribers gauge to be exposed")
	}
}
