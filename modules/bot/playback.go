package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zachfi/wsmbot/modules/station"
)

// connectAttempts is how many times a voice join is tried before giving up
// with ErrVoiceConnectTimeout.
const connectAttempts = 2

// Voice is one established voice connection able to play a single source.
type Voice interface {
	Play(url string) error
	Stop()
	Pause()
	Resume()
	Playing() bool
	Paused() bool
	Connected() bool
	Disconnect() error
}

// Dialer joins voice channels. Dial must give up when ctx is done.
type Dialer interface {
	Dial(ctx context.Context, guildID, channelID string) (Voice, error)
}

// Refresher fetches fresh station metadata.
type Refresher interface {
	Refresh(ctx context.Context)
}

type session struct {
	channelID   string
	channelName string
	voice       Voice
}

// guild serialises commands for one guild so that concurrent /play calls
// cannot open two voice connections.
type guild struct {
	mu      sync.Mutex
	session *session
}

// Controller owns the voice sessions, one per guild.
type Controller struct {
	dialer         Dialer
	streamURL      string
	connectTimeout time.Duration
	state          *station.State
	refresher      Refresher
	presence       *Presence
	logger         *slog.Logger

	mu     sync.Mutex
	guilds map[string]*guild
	active map[string]struct{}
}

func NewController(dialer Dialer, streamURL string, connectTimeout time.Duration, state *station.State, refresher Refresher, presence *Presence, logger *slog.Logger) *Controller {
	return &Controller{
		dialer:         dialer,
		streamURL:      streamURL,
		connectTimeout: connectTimeout,
		state:          state,
		refresher:      refresher,
		presence:       presence,
		logger:         logger,
		guilds:         make(map[string]*guild),
		active:         make(map[string]struct{}),
	}
}

func (c *Controller) guildFor(id string) *guild {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.guilds[id]
	if !ok {
		g = &guild{}
		c.guilds[id] = g
	}
	return g
}

// setActive records whether guildID has a running source and mirrors
// "anything playing" into the station state.
func (c *Controller) setActive(guildID string, active bool) {
	c.mu.Lock()
	if active {
		c.active[guildID] = struct{}{}
	} else {
		delete(c.active, guildID)
	}
	n := len(c.active)
	c.mu.Unlock()

	c.state.SetPlaying(n > 0)
	metricSessions.Set(float64(n))
}

// Play joins channelID if the guild has no session and starts the stream,
// stopping whatever was playing first. It returns the name of the channel
// the stream is playing in.
func (c *Controller) Play(ctx context.Context, guildID, channelID, channelName string) (string, error) {
	g := c.guildFor(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session != nil && !g.session.voice.Connected() {
		c.logger.Info("dropping stale voice session", "guild", guildID, "channel", g.session.channelID)
		_ = g.session.voice.Disconnect()
		g.session = nil
		c.setActive(guildID, false)
	}

	if g.session == nil {
		v, err := c.connect(ctx, guildID, channelID)
		if err != nil {
			return "", err
		}
		g.session = &session{channelID: channelID, channelName: channelName, voice: v}
	}

	s := g.session
	if s.voice.Playing() || s.voice.Paused() {
		s.voice.Stop()
	}

	if err := s.voice.Play(c.streamURL); err != nil {
		c.setActive(guildID, false)
		return "", err
	}

	c.setActive(guildID, true)
	c.refresher.Refresh(ctx)
	c.presence.Update()

	return s.channelName, nil
}

// connect dials with a bounded timeout, retrying once after a timeout.
func (c *Controller) connect(ctx context.Context, guildID, channelID string) (Voice, error) {
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
		v, err := c.dialer.Dial(dialCtx, guildID, channelID)
		cancel()

		if err == nil {
			return v, nil
		}
		if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("join voice channel: %w", err)
		}

		c.logger.Warn("voice connection timed out", "guild", guildID, "channel", channelID, "attempt", attempt)
	}

	return nil, ErrVoiceConnectTimeout
}

// Stop ends playback and leaves the voice channel.
func (c *Controller) Stop(guildID string) error {
	g := c.guildFor(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session == nil {
		return ErrNotConnected
	}

	s := g.session
	g.session = nil
	c.setActive(guildID, false)

	if !s.voice.Connected() {
		_ = s.voice.Disconnect()
		c.presence.Update()
		return ErrNotConnected
	}

	if err := s.voice.Disconnect(); err != nil {
		c.logger.Warn("error disconnecting from voice", "guild", guildID, "err", err)
	}
	c.presence.Update()

	return nil
}

func (c *Controller) Pause(guildID string) error {
	g := c.guildFor(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session == nil || !g.session.voice.Playing() {
		return ErrNotPlaying
	}
	g.session.voice.Pause()
	return nil
}

func (c *Controller) Resume(guildID string) error {
	g := c.guildFor(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.session == nil || !g.session.voice.Paused() {
		return ErrNotPaused
	}
	g.session.voice.Resume()
	return nil
}

// Reconcile marks guilds whose source ended on its own as inactive. The
// voice connection is kept so a later play reuses it. It runs on the refresh
// tick and never waits: guilds with a command in flight are skipped until
// the next tick.
func (c *Controller) Reconcile() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		g := c.guildFor(id)
		if !g.mu.TryLock() {
			continue
		}
		if g.session == nil || (!g.session.voice.Playing() && !g.session.voice.Paused()) {
			c.logger.Info("stream ended", "guild", id)
			c.setActive(id, false)
		}
		g.mu.Unlock()
	}
}

// Shutdown leaves every voice channel.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.guilds))
	for id := range c.guilds {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		g := c.guildFor(id)
		g.mu.Lock()
		if g.session != nil {
			if err := g.session.voice.Disconnect(); err != nil {
				c.logger.Warn("error disconnecting from voice", "guild", id, "err", err)
			}
			g.session = nil
		}
		g.mu.Unlock()
		c.setActive(id, false)
	}
}
