// File path: internal/sandbox/client_test.go
package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeSandbox struct {
	mu          sync.Mutex
	applied     map[string]string
	deleted     []string
	restarts    int
	healthAfter int
	healthCalls int
	lastAuth    string
}

func (f *fakeSandbox) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/apply", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.lastAuth = r.Header.Get("Authorization")
		var payload struct {
			Project string            `json:"project"`
			Files   map[string]string `json:"files"`
			Deleted []string          `json:"deleted"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.applied = payload.Files
		f.deleted = payload.Deleted
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/restart", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.restarts++
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.healthCalls++
		ready := f.healthCalls > f.healthAfter
		_ = json.NewEncoder(w).Encode(HealthStatus{Ready: ready})
	})
	return mux
}

func newTestClient(t *testing.T, fake *fakeSandbox, apiKey string) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:     srv.URL,
		APIKey:      apiKey,
		Timeout:     5 * time.Second,
		RestartWait: 3 * time.Second,
	})
}

func TestApplySendsFilesAndAuth(t *testing.T) {
	fake := &fakeSandbox{}
	client := newTestClient(t, fake, "secret")

	files := map[string]string{"src/app.ts": "export {};"}
	if err := client.Apply(context.Background(), "demo", files, []string{"old.ts"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if diff := cmp.Diff(files, fake.applied); diff != "" {
		t.Fatalf("applied files mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"old.ts"}, fake.deleted); diff != "" {
		t.Fatalf("deleted mismatch (-want +got):\n%s", diff)
	}
	if fake.lastAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", fake.lastAuth)
	}
}

func TestRestartWaitsForReady(t *testing.T) {
	fake := &fakeSandbox{healthAfter: 2}
	client := newTestClient(t, fake, "")

	if err := client.Restart(context.Background(), "demo"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if fake.restarts != 1 {
		t.Fatalf("expected one restart, got %d", fake.restarts)
	}
	if fake.healthCalls < 3 {
		t.Fatalf("expected health polling until ready, got %d calls", fake.healthCalls)
	}
}

func TestRestartTimesOutWhenNeverReady(t *testing.T) {
	fake := &fakeSandbox{healthAfter: 1 << 30}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	client := New(Config{
		BaseURL:     srv.URL,
		Timeout:     time.Second,
		RestartWait: 700 * time.Millisecond,
	})

	if err := client.Restart(context.Background(), "demo"); err == nil {
		t.Fatal("expected restart timeout error")
	}
}

func TestApplyErrorSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workspace locked", http.StatusConflict)
	}))
	t.Cleanup(srv.Close)
	client := New(Config{BaseURL: srv.URL, Timeout: time.Second, RestartWait: time.Second})

	err := client.Apply(context.Background(), "demo", map[string]string{"a": "b"}, nil)
	if err == nil {
		t.Fatal("expected apply error")
	}
	if got := err.Error(); !strings.Contains(got, "workspace locked") {
		t.Fatalf("error should carry response body, got %q", got)
	}
}
