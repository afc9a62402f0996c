package station

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grafana/dskit/services"
)

func TestStation_RefreshesOnSchedule(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every other response fails; the schedule must keep going.
		if requests.Add(1)%2 == 0 {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(goodStatus))
	}))
	defer server.Close()

	cfg := Config{
		StatusURL:       server.URL,
		Name:            testStation,
		RefreshInterval: 20 * time.Millisecond,
		FetchTimeout:    time.Second,
	}
	s, err := New(cfg, *slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	notified := make(chan Status, 16)
	s.AddListener(func(_ context.Context, status Status) {
		select {
		case notified <- status:
		default:
		}
	})

	ctx := context.Background()
	if err := services.StartAndAwaitRunning(ctx, s); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	defer func() {
		if err := services.StopAndAwaitTerminated(ctx, s); err != nil {
			t.Errorf("failed to stop: %v", err)
		}
	}()

	// The initial refresh happens while starting.
	if requests.Load() < 1 {
		t.Fatal("expected a refresh during startup")
	}

	var sawFailed, sawOK bool
	deadline := time.After(2 * time.Second)
	for !(sawFailed && sawOK) {
		select {
		case status := <-notified:
			if status.FetchFailed {
				sawFailed = true
			} else {
				sawOK = true
			}
		case <-deadline:
			t.Fatalf("timed out waiting for ticks (failed=%v ok=%v)", sawFailed, sawOK)
		}
	}

	if s.State() == nil || s.Name() != testStation {
		t.Error("unexpected accessors")
	}
}

func TestStation_ServeHTTP(t *testing.T) {
	s, err := New(Config{Name: testStation}, *slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	s.State().Replace(Status{Title: "Opry", Listeners: 9})
	s.State().SetPlaying(true)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/station", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var body struct {
		Title     string  `json:"title"`
		Listeners int     `json:"listeners"`
		Playing   bool    `json:"playing"`
		UpdatedAt *string `json:"updated_at"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Title != "Opry" || body.Listeners != 9 || !body.Playing || body.UpdatedAt == nil {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestState_DefaultsAndReplace(t *testing.T) {
	s := NewState(testStation)
	if got := s.Status(); got.Title != testStation || got.Listeners != 0 || got.FetchFailed {
		t.Errorf("unexpected defaults %+v", got)
	}
	if s.UpdatedAt() != nil {
		t.Error("expected no update time before the first replace")
	}

	s.Replace(Fallback(testStation))
	if !s.Status().FetchFailed {
		t.Error("expected FetchFailed after replacing with fallback")
	}
}

func TestState_ConcurrentReaders(t *testing.T) {
	s := NewState(testStation)
	a := Status{Title: "A", Listeners: 1}
	b := Status{Title: "B", Listeners: 2}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			if i%2 == 0 {
				s.Replace(a)
			} else {
				s.Replace(b)
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		got := s.Status()
		if (got.Title == "A" && got.Listeners != 1) || (got.Title == "B" && got.Listeners != 2) {
			t.Fatalf("observed a torn snapshot: %+v", got)
		}
	}
}
