package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := RespondError(rec, http.StatusConflict, "session is closed"); err != nil {
		t.Fatalf("RespondError err: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"error":"session is closed"}` {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestSendSSEEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	SetupSSEHeaders(rec)
	if err := SendSSEEvent(rec, rec, "typing", map[string]bool{"typing": true}); err != nil {
		t.Fatalf("SendSSEEvent err: %v", err)
	}
	if got := rec.Body.String(); got != "event: typing\ndata: {\"typing\":true}\n\n" {
		t.Fatalf("unexpected frame %q", got)
	}
	if !rec.Flushed {
		t.Fatal("expected flush")
	}
}
