package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/grafana/dskit/signals"
	"github.com/pkg/errors"

	"github.com/zachfi/wsmbot/modules/bot"
	"github.com/zachfi/wsmbot/modules/station"
)

const metricsNamespace = "wsmbot"

type App struct {
	cfg    Config
	logger slog.Logger

	Server *server.Server

	station *station.Station
	bot     *bot.Bot

	ModuleManager *modules.Manager
	serviceMap    map[string]services.Service
}

// New creates and returns a new App.
func New(cfg Config, logger slog.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
	}

	if a.cfg.Target == "" {
		a.cfg.Target = All
	}

	if err := a.setupModuleManager(); err != nil {
		return nil, errors.Wrap(err, "failed to setup module manager")
	}

	return a, nil
}

// Run starts the target's modules and blocks until they stop, either on a
// signal or because one of them failed.
func (a *App) Run() error {
	serviceMap, err := a.ModuleManager.InitModuleServices(a.cfg.Target)
	if err != nil {
		return errors.Wrap(err, "failed to init module services")
	}
	a.serviceMap = serviceMap

	names := make([]string, 0, len(serviceMap))
	servs := make([]services.Service, 0, len(serviceMap))
	for m, s := range serviceMap {
		names = append(names, m)
		servs = append(servs, s)
	}
	slices.Sort(names)

	sm, err := services.NewManager(servs...)
	if err != nil {
		return errors.Wrap(err, "failed to create service manager")
	}

	a.Server.HTTP.Path("/ready").Handler(a.readyHandler(sm))

	healthy := func() { a.logger.Info("started", "target", a.cfg.Target, "modules", names) }
	stopped := func() { a.logger.Info("stopped") }
	serviceFailed := func(service services.Service) {
		// if any service fails, stop everything
		sm.StopAsync()

		for m, s := range serviceMap {
			if s == service {
				if service.FailureCase() == modules.ErrStopProcess {
					a.logger.Info("received stop signal via return error", "module", m, "err", service.FailureCase())
				} else {
					a.logger.Error("module failed", "module", m, "err", service.FailureCase())
				}
				return
			}
		}

		a.logger.Error("module failed", "module", "unknown", "err", service.FailureCase())
	}
	sm.AddListener(services.NewManagerListener(healthy, stopped, serviceFailed))

	// Stopping the manager leaves the voice channels before the gateway closes.
	handler := signals.NewHandler(a.Server.Log)
	go func() {
		handler.Loop()
		sm.StopAsync()
	}()

	if err := sm.StartAsync(context.Background()); err != nil {
		return errors.Wrap(err, "failed to start service manager")
	}

	return sm.AwaitStopped(context.Background())
}

// readyHandler reports 200 once every module is running.
func (a *App) readyHandler(sm *services.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !sm.IsHealthy() {
			var notRunning []string
			for state, svcs := range sm.ServicesByState() {
				if state != services.Running {
					notRunning = append(notRunning, fmt.Sprintf("%s: %d", state, len(svcs)))
				}
			}
			http.Error(w, fmt.Sprintf("some services are not running: %v", notRunning), http.StatusServiceUnavailable)
			return
		}

		if a.station != nil && a.station.State().UpdatedAt() == nil {
			http.Error(w, "station status not fetched yet", http.StatusServiceUnavailable)
			return
		}

		fmt.Fprintln(w, "ready")
	}
}
