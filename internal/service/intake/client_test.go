package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	intakemodel "github.com/jansunwai/assistant/internal/model/intake"
	"github.com/jansunwai/assistant/internal/service/auth"
)

func TestSubmitSendsBodyAndCredentials(t *testing.T) {
	var got intakemodel.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("unexpected Authorization %q", auth)
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "s1" {
			t.Errorf("missing forwarded cookie: %v", err)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"type":"newComplaint","ticketId":"T-123","message":"ok","status":"open","department":"water"}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient err: %v", err)
	}

	creds := auth.Credentials{Token: "tok", Cookies: []*http.Cookie{{Name: "session", Value: "s1"}}}
	resp, err := client.Submit(context.Background(), creds, intakemodel.Request{RawText: "no water"}.WithCoordinates(12.5, 77.25))
	if err != nil {
		t.Fatalf("Submit err: %v", err)
	}

	complaint, ok := resp.(intakemodel.NewComplaint)
	if !ok {
		t.Fatalf("expected NewComplaint, got %T", resp)
	}
	if complaint.TicketID != "T-123" {
		t.Fatalf("unexpected ticket %q", complaint.TicketID)
	}
	if got.RawText != "no water" || got.Lat == nil || *got.Lat != 12.5 || got.Lng == nil || *got.Lng != 77.25 {
		t.Fatalf("unexpected request body %+v", got)
	}
}

func TestSubmitOmitsCoordinatesWhenAbsent(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"type":"faq","answer":"Call 311"}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, time.Second, nil)
	if _, err := client.Submit(context.Background(), auth.Credentials{Token: "tok"}, intakemodel.Request{RawText: "hours?"}); err != nil {
		t.Fatalf("Submit err: %v", err)
	}
	if _, ok := raw["lat"]; ok {
		t.Fatal("lat must be omitted")
	}
	if _, ok := raw["lng"]; ok {
		t.Fatal("lng must be omitted")
	}
}

func TestSubmitNonSuccessIsStatusErrorWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, time.Second, zap.NewNop())
	_, err := client.Submit(context.Background(), auth.Credentials{Token: "tok"}, intakemodel.Request{RawText: "x"})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("unexpected status %d", statusErr.StatusCode)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected exactly one call, got %d", n)
	}
}

func TestSubmitMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL, time.Second, zap.NewNop())
	if _, err := client.Submit(context.Background(), auth.Credentials{Token: "tok"}, intakemodel.Request{RawText: "x"}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSubmitTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, _ := NewClient(srv.URL, 50*time.Millisecond, zap.NewNop())
	_, err := client.Submit(context.Background(), auth.Credentials{Token: "tok"}, intakemodel.Request{RawText: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient("  ", time.Second, nil); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
