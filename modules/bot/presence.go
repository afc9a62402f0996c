package bot

import (
	"fmt"
	"log/slog"

	"github.com/zachfi/wsmbot/modules/station"
)

const (
	presenceUnavailable = "Status temporarily unavailable"
	presenceStandby     = "Standby"
	presenceFallback    = "Radio Station"
)

// Activity is a "Listening to" presence.
type Activity struct {
	Name    string
	Details string
	State   string
}

// PresenceUpdater pushes an activity to the chat platform.
type PresenceUpdater interface {
	UpdatePresence(a Activity) error
}

// Project derives the presence from a station snapshot. A failed fetch shows
// a fixed unavailable line rather than stale data; playing only changes the
// details line.
func Project(status station.Status, playing bool, stationName string) Activity {
	if status.FetchFailed {
		return Activity{
			Name:    stationName,
			Details: presenceFallback,
			State:   presenceUnavailable,
		}
	}

	details := stationName
	if !playing {
		details = presenceStandby
	}

	return Activity{
		Name:    status.Title,
		Details: details,
		State:   fmt.Sprintf("👥 %d listeners", status.Listeners),
	}
}

// Presence keeps the bot's presence in line with the station state. Updates
// are best effort.
type Presence struct {
	state       *station.State
	stationName string
	updater     PresenceUpdater
	logger      *slog.Logger
}

func NewPresence(state *station.State, stationName string, updater PresenceUpdater, logger *slog.Logger) *Presence {
	return &Presence{
		state:       state,
		stationName: stationName,
		updater:     updater,
		logger:      logger,
	}
}

// Update pushes the current projection. Failures are logged and dropped.
func (p *Presence) Update() {
	a := Project(p.state.Status(), p.state.Playing(), p.stationName)
	if err := p.updater.UpdatePresence(a); err != nil {
		p.logger.Warn("error updating presence", "err", err)
	}
}
