package station

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/grafana/dskit/services"
)

var module = "station"

// Listener is called after every scheduled refresh with the new snapshot.
type Listener func(ctx context.Context, status Status)

// Station keeps State fresh by refreshing it on a fixed interval for as long
// as the service runs, whether or not anything is playing.
type Station struct {
	services.Service
	cfg     *Config
	logger  *slog.Logger
	state   *State
	fetcher *Fetcher

	listenersMu sync.Mutex
	listeners   []Listener
}

// New creates and returns a new Station.
func New(cfg Config, logger slog.Logger) (*Station, error) {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	if cfg.Name == "" {
		cfg.Name = defaultStationName
	}

	s := &Station{
		cfg:    &cfg,
		logger: logger.With("module", module),
		state:  NewState(cfg.Name),
	}
	s.fetcher = NewFetcher(cfg, s.state, s.logger)

	s.Service = services.NewTimerService(cfg.RefreshInterval, s.starting, s.iteration, nil)

	return s, nil
}

func (s *Station) starting(ctx context.Context) error {
	s.fetcher.Refresh(ctx)
	return nil
}

// iteration never returns an error: a failed refresh must not stop the
// timer service.
func (s *Station) iteration(ctx context.Context) error {
	s.fetcher.Refresh(ctx)
	s.notify(ctx, s.state.Status())
	return nil
}

// Refresh fetches the status now, outside the schedule. Listeners are not
// notified.
func (s *Station) Refresh(ctx context.Context) {
	s.fetcher.Refresh(ctx)
}

// State returns the shared station state.
func (s *Station) State() *State {
	return s.state
}

// Name returns the configured station name.
func (s *Station) Name() string {
	return s.cfg.Name
}

// StreamURL returns the audio stream URL.
func (s *Station) StreamURL() string {
	return s.cfg.StreamURL
}

// AddListener registers l to run after each scheduled refresh.
func (s *Station) AddListener(l Listener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Station) notify(ctx context.Context, status Status) {
	s.listenersMu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(ctx, status)
	}
}

// ServeHTTP writes the current snapshot as JSON.
func (s *Station) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status
		Playing   bool    `json:"playing"`
		UpdatedAt *string `json:"updated_at,omitempty"`
	}

	resp := response{
		Status:  s.state.Status(),
		Playing: s.state.Playing(),
	}
	if t := s.state.UpdatedAt(); t != nil {
		ts := t.Format("2006-01-02T15:04:05Z07:00")
		resp.UpdatedAt = &ts
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("error encoding station status", "err", err)
	}
}
