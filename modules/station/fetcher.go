package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/zachfi/zkit/pkg/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const maxStatusBody = 256 * 1024

// Fetcher performs one round trip to the status endpoint per Refresh and
// records the outcome in State.
type Fetcher struct {
	statusURL   string
	userAgent   string
	stationName string
	matcher     Matcher

	client *http.Client
	state  *State
	logger *slog.Logger
	tracer trace.Tracer
}

func NewFetcher(cfg Config, state *State, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		statusURL:   cfg.StatusURL,
		userAgent:   cfg.UserAgent,
		stationName: cfg.Name,
		matcher:     cfg.matcher(),
		client: &http.Client{
			Timeout:   cfg.FetchTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		state:  state,
		logger: logger,
		tracer: otel.Tracer(module),
	}
}

// Refresh fetches the status and replaces the snapshot in State. It never
// fails; any problem leaves the fallback snapshot with FetchFailed set.
func (f *Fetcher) Refresh(ctx context.Context) {
	start := time.Now()
	status, err := f.fetch(ctx)
	metricFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		result := "network"
		if errors.Is(err, ErrMalformedStatus) {
			result = "malformed"
		}
		metricFetchTotal.WithLabelValues(result).Inc()
		metricListeners.Set(0)

		f.logger.Warn("error fetching station status", "err", err, "url", f.statusURL)
		f.state.Replace(Fallback(f.stationName))
		return
	}

	metricFetchTotal.WithLabelValues("success").Inc()
	metricListeners.Set(float64(status.Listeners))

	f.logger.Info("currently playing", "title", status.Title, "listeners", status.Listeners)
	f.state.Replace(status)
}

func (f *Fetcher) fetch(ctx context.Context) (status Status, err error) {
	ctx, span := f.tracer.Start(ctx, "Fetcher.fetch")
	defer func() { _ = tracing.ErrHandler(span, err, "status fetch failed", nil) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.statusURL, nil)
	if err != nil {
		return Status{}, &NetworkError{Op: "create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Status{}, &NetworkError{Op: "http request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxStatusBody))
		return Status{}, &NetworkError{Op: "http request", StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return Status{}, &NetworkError{Op: "read body", Err: err}
	}

	doc, err := ParseDocument(body)
	if err != nil {
		return Status{}, &NetworkError{Op: "parse json", Err: err}
	}

	status, err = Normalize(doc, f.matcher, f.stationName)
	if err != nil {
		return Status{}, fmt.Errorf("normalize: %w", err)
	}

	return status, nil
}
