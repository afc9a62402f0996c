package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/grafana/dskit/services"

	"github.com/zachfi/wsmbot/modules/station"
	"github.com/zachfi/wsmbot/pkg/voice"
)

var module = "bot"

// ErrMissingToken is returned when no bot token is configured.
var ErrMissingToken = errors.New("discord token is not set")

// Bot connects to the Discord gateway, registers the slash commands and
// routes interactions to the handlers.
type Bot struct {
	services.Service
	cfg     *Config
	logger  *slog.Logger
	station *station.Station
	session *discordgo.Session

	presence   *Presence
	controller *Controller
	handlers   *Handlers
}

// New creates and returns a new Bot.
func New(cfg Config, st *station.Station, logger slog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	b := &Bot{
		cfg:     &cfg,
		logger:  logger.With("module", module),
		station: st,
		session: session,
	}

	dialer := &voiceDialer{d: voice.NewDialer(session, voice.Config{
		FFmpegPath: cfg.FFmpegPath,
		Bitrate:    cfg.Bitrate,
	}, b.logger)}

	b.presence = NewPresence(st.State(), st.Name(), &gatewayPresence{session: session}, b.logger)
	b.controller = NewController(dialer, st.StreamURL(), cfg.ConnectTimeout, st.State(), st, b.presence, b.logger)
	b.handlers = NewHandlers(b.controller, st, b.logger)

	b.Service = services.NewBasicService(b.starting, b.running, b.stopping)

	return b, nil
}

func (b *Bot) starting(_ context.Context) error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteraction)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}

	b.station.AddListener(func(context.Context, station.Status) {
		b.controller.Reconcile()
		b.presence.Update()
	})

	return nil
}

func (b *Bot) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (b *Bot) stopping(_ error) error {
	b.logger.Info("stopping")
	b.controller.Shutdown()
	return b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("logged in", "user", r.User.String())

	synced, err := s.ApplicationCommandBulkOverwrite(r.User.ID, b.cfg.GuildID, applicationCommands(b.station.Name()))
	if err != nil {
		b.logger.Error("error syncing slash commands", "err", err)
	} else {
		b.logger.Info("synced slash commands", "count", len(synced))
	}

	b.presence.Update()
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	name := i.ApplicationCommandData().Name
	handler, ok := b.handlers.Lookup(name)
	if !ok {
		b.logger.Warn("unknown command", "command", name)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CommandTimeout)
	defer cancel()

	var acked atomic.Bool
	cmd := b.command(s, i, name)
	cmd.Ack = func(content string) error {
		if err := ack(s, i, content); err != nil {
			b.logger.Warn("error acknowledging interaction", "command", name, "err", err)
			return err
		}
		acked.Store(true)
		return nil
	}

	reply := handler(ctx, cmd)

	if err := respond(s, i, reply, acked.Load()); err != nil {
		b.logger.Error("error responding to interaction", "command", name, "err", err)
	}
}

// command extracts the invoking user and their current voice channel.
func (b *Bot) command(s *discordgo.Session, i *discordgo.InteractionCreate, name string) Command {
	cmd := Command{Name: name, GuildID: i.GuildID}

	switch {
	case i.Member != nil && i.Member.User != nil:
		cmd.UserID = i.Member.User.ID
	case i.User != nil:
		cmd.UserID = i.User.ID
	}

	if cmd.GuildID == "" || cmd.UserID == "" {
		return cmd
	}

	vs, err := s.State.VoiceState(cmd.GuildID, cmd.UserID)
	if err != nil || vs.ChannelID == "" {
		return cmd
	}
	cmd.VoiceChannelID = vs.ChannelID
	cmd.VoiceChannelName = vs.ChannelID

	ch, err := s.State.Channel(vs.ChannelID)
	if err != nil {
		ch, err = s.Channel(vs.ChannelID)
	}
	if err == nil {
		cmd.VoiceChannelName = ch.Name
	}

	return cmd
}

func ack(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if content != "" {
		resp = &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Content: content},
		}
	}
	return s.InteractionRespond(i.Interaction, resp)
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, r Reply, acked bool) error {
	embeds := []*discordgo.MessageEmbed{}
	if r.Embed != nil {
		embeds = append(embeds, r.Embed.message())
	}

	if acked {
		_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
			Content: &r.Content,
			Embeds:  &embeds,
		})
		return err
	}

	data := &discordgo.InteractionResponseData{Content: r.Content, Embeds: embeds}
	if r.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

func (e *Embed) message() *discordgo.MessageEmbed {
	m := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		m.Fields = append(m.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return m
}

func applicationCommands(stationName string) []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "play", Description: commandPlayPrefix + stationName + " radio"},
		{Name: "stop", Description: commandStopDesc},
		{Name: "pause", Description: commandPauseDesc},
		{Name: "resume", Description: commandResumeDesc},
		{Name: "info", Description: commandInfoDesc},
		{Name: "help", Description: commandHelpDesc},
	}
}

// gatewayPresence sets a "Listening to" activity over the gateway.
type gatewayPresence struct {
	session *discordgo.Session
}

func (p *gatewayPresence) UpdatePresence(a Activity) error {
	return p.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: string(discordgo.StatusOnline),
		Activities: []*discordgo.Activity{{
			Name:    a.Name,
			Type:    discordgo.ActivityTypeListening,
			Details: a.Details,
			State:   a.State,
		}},
	})
}

// voiceDialer adapts voice.Dialer to Dialer.
type voiceDialer struct {
	d *voice.Dialer
}

func (v *voiceDialer) Dial(ctx context.Context, guildID, channelID string) (Voice, error) {
	conn, err := v.d.Dial(ctx, guildID, channelID)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
