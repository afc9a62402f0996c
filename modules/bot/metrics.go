package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "wsmbot"

var (
	metricCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "commands_total",
		Help:      "Slash commands handled, by command and outcome.",
	}, []string{"command", "outcome"})

	metricSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: module,
		Name:      "active_sessions",
		Help:      "Guilds with a stream playing or paused.",
	})
)
