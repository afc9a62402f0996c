package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/zachfi/wsmbot/modules/station"
	"github.com/zachfi/wsmbot/pkg/voice"
)

const embedColor = 0x00ff00

const (
	msgNotInVoice      = "You must join a voice channel first!"
	msgConnecting      = "🔄 Connecting and playing radio..."
	msgNowPlaying      = "▶️ Now playing %s in **%s**"
	msgConnectTimeout  = "❌ Connecting to the voice channel timed out. Please try again."
	msgEngineMissing   = "❌ FFmpeg not found"
	msgPlayError       = "Error playing stream: %v"
	msgStopped         = "⏹️ Stopped playing and left voice channel."
	msgNotConnected    = "I'm not currently in any voice channel."
	msgPaused          = "⏸️ Playback paused."
	msgNothingPlaying  = "No audio is currently playing."
	msgResumed         = "▶️ Playback resumed."
	msgNothingPaused   = "No audio is currently paused."
	msgUnknownError    = "Something went wrong: %v"
	statusPlaying      = "Playing"
	statusNotPlaying   = "Not Playing"
	infoUnavailable    = "Station status is temporarily unavailable."
	helpDescription    = "Available slash commands:"
	commandPlayPrefix  = "Play "
	commandStopDesc    = "Stop playing and leave voice channel"
	commandPauseDesc   = "Pause playback"
	commandResumeDesc  = "Resume playback"
	commandInfoDesc    = "Show current playback information"
	commandHelpDesc    = "Show radio bot help"
	commandHelpMessage = "Show this help message"
)

// Command is one slash command invocation.
type Command struct {
	Name             string
	GuildID          string
	UserID           string
	VoiceChannelID   string // empty when the caller is not in a voice channel
	VoiceChannelName string

	// Ack sends an interim response for slow commands; an empty content
	// defers the response. The final Reply then replaces it. May be nil.
	Ack func(content string) error
}

func (c Command) ack(content string) {
	if c.Ack != nil {
		_ = c.Ack(content)
	}
}

// Reply is the response to a Command.
type Reply struct {
	Content   string
	Embed     *Embed
	Ephemeral bool

	outcome string
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Station is the view of the station the handlers need.
type Station interface {
	Refresher
	State() *station.State
	Name() string
}

type HandlerFunc func(ctx context.Context, cmd Command) Reply

// Handlers turns slash commands into controller calls and replies.
type Handlers struct {
	controller *Controller
	station    Station
	logger     *slog.Logger
	handlers   map[string]HandlerFunc
}

func NewHandlers(controller *Controller, st Station, logger *slog.Logger) *Handlers {
	h := &Handlers{
		controller: controller,
		station:    st,
		logger:     logger,
	}
	h.handlers = map[string]HandlerFunc{
		"play":   h.Play,
		"stop":   h.Stop,
		"pause":  h.Pause,
		"resume": h.Resume,
		"info":   h.Info,
		"help":   h.Help,
	}
	return h
}

// Lookup returns the handler for a command name.
func (h *Handlers) Lookup(name string) (HandlerFunc, bool) {
	f, ok := h.handlers[name]
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, cmd Command) Reply {
		reply := f(ctx, cmd)
		outcome := reply.outcome
		if outcome == "" {
			outcome = "ok"
		}
		metricCommands.WithLabelValues(name, outcome).Inc()
		return reply
	}, true
}

func (h *Handlers) Play(ctx context.Context, cmd Command) Reply {
	if cmd.VoiceChannelID == "" {
		return h.precondition(cmd, ErrNotInVoice, msgNotInVoice)
	}

	cmd.ack(msgConnecting)

	channel, err := h.controller.Play(ctx, cmd.GuildID, cmd.VoiceChannelID, cmd.VoiceChannelName)
	switch {
	case err == nil:
		return Reply{Content: fmt.Sprintf(msgNowPlaying, h.station.Name(), channel)}
	case errors.Is(err, ErrVoiceConnectTimeout):
		h.logger.Error("voice connection timed out", "guild", cmd.GuildID, "channel", cmd.VoiceChannelID)
		return Reply{Content: msgConnectTimeout, outcome: "error"}
	case errors.Is(err, voice.ErrEngineUnavailable):
		h.logger.Error("error playing stream", "guild", cmd.GuildID, "err", err)
		return Reply{Content: msgEngineMissing, outcome: "error"}
	default:
		h.logger.Error("error playing stream", "guild", cmd.GuildID, "err", err)
		return Reply{Content: fmt.Sprintf(msgPlayError, err), outcome: "error"}
	}
}

func (h *Handlers) Stop(_ context.Context, cmd Command) Reply {
	if err := h.controller.Stop(cmd.GuildID); err != nil {
		return h.failure(cmd, err, msgNotConnected)
	}
	return Reply{Content: msgStopped}
}

func (h *Handlers) Pause(_ context.Context, cmd Command) Reply {
	if err := h.controller.Pause(cmd.GuildID); err != nil {
		return h.failure(cmd, err, msgNothingPlaying)
	}
	return Reply{Content: msgPaused}
}

func (h *Handlers) Resume(_ context.Context, cmd Command) Reply {
	if err := h.controller.Resume(cmd.GuildID); err != nil {
		return h.failure(cmd, err, msgNothingPaused)
	}
	return Reply{Content: msgResumed}
}

// Info refreshes the station status before rendering it.
func (h *Handlers) Info(ctx context.Context, cmd Command) Reply {
	cmd.ack("")
	h.station.Refresh(ctx)

	state := h.station.State()
	status := state.Status()

	playback := statusNotPlaying
	if state.Playing() {
		playback = statusPlaying
	}

	embed := &Embed{
		Title: fmt.Sprintf("📻 %s Current Playback Info", h.station.Name()),
		Color: embedColor,
		Fields: []EmbedField{
			{Name: "🎵 Currently Playing", Value: status.Title},
			{Name: "👥 Listeners", Value: strconv.Itoa(status.Listeners), Inline: true},
			{Name: "📡 Playback Status", Value: playback, Inline: true},
		},
	}

	if status.FetchFailed {
		embed.Description = infoUnavailable
		return Reply{Embed: embed}
	}

	optional := []struct {
		name  string
		value string
	}{
		{"🎶 Genre", status.Genre},
		{"🎚️ Bitrate", kbps(status.BitrateKbps)},
		{"📈 Listener Peak", intString(status.ListenerPeak)},
		{"🏷️ Server", status.ServerName},
		{"📝 Description", status.ServerDescription},
		{"🕒 On Air Since", status.StreamStart},
		{"🔗 Website", status.ServerURL},
	}
	for _, f := range optional {
		if f.value != "" {
			embed.Fields = append(embed.Fields, EmbedField{Name: f.name, Value: f.value, Inline: true})
		}
	}

	return Reply{Embed: embed}
}

func (h *Handlers) Help(_ context.Context, _ Command) Reply {
	return Reply{Embed: &Embed{
		Title:       fmt.Sprintf("📻 %s Radio Bot Commands", h.station.Name()),
		Description: helpDescription,
		Color:       embedColor,
		Fields: []EmbedField{
			{Name: "/play", Value: commandPlayPrefix + h.station.Name() + " radio"},
			{Name: "/pause", Value: commandPauseDesc, Inline: true},
			{Name: "/resume", Value: commandResumeDesc, Inline: true},
			{Name: "/stop", Value: commandStopDesc},
			{Name: "/info", Value: commandInfoDesc},
			{Name: "/help", Value: commandHelpMessage},
		},
	}}
}

// failure maps precondition errors to their message and anything else to a
// generic error reply.
func (h *Handlers) failure(cmd Command, err error, preconditionMsg string) Reply {
	if errors.Is(err, ErrPreconditionFailed) {
		return h.precondition(cmd, err, preconditionMsg)
	}
	h.logger.Error("command failed", "command", cmd.Name, "guild", cmd.GuildID, "err", err)
	return Reply{Content: fmt.Sprintf(msgUnknownError, err), outcome: "error"}
}

func (h *Handlers) precondition(cmd Command, err error, msg string) Reply {
	h.logger.Debug("command precondition failed", "command", cmd.Name, "guild", cmd.GuildID, "reason", err)
	return Reply{Content: msg, Ephemeral: true, outcome: "precondition"}
}

func kbps(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d kbps", *v)
}

func intString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
