// Package voice plays an internet radio stream into a Discord voice channel.
//
// The stream is opened with pkg/shoutcast, transcoded to 48kHz stereo Opus by
// ffmpeg in an Ogg container, and each Ogg page is sent to the voice
// connection as one Opus frame.
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/zachfi/wsmbot/pkg/shoutcast"
)

// ErrEngineUnavailable is returned by Play when the ffmpeg binary cannot be
// found or started.
var ErrEngineUnavailable = errors.New("ffmpeg was not found")

const defaultBitrate = 96

type Config struct {
	FFmpegPath string
	Bitrate    int // kbps
}

// Dialer joins voice channels through a gateway session.
type Dialer struct {
	cfg    Config
	logger *slog.Logger

	join  func(guildID, channelID string) (*discordgo.VoiceConnection, error)
	leave func(vc *discordgo.VoiceConnection)
}

func NewDialer(session *discordgo.Session, cfg Config, logger *slog.Logger) *Dialer {
	return &Dialer{
		cfg:    cfg,
		logger: logger,
		join: func(guildID, channelID string) (*discordgo.VoiceConnection, error) {
			return session.ChannelVoiceJoin(guildID, channelID, false, true)
		},
		leave: func(vc *discordgo.VoiceConnection) { _ = vc.Disconnect() },
	}
}

// Dial joins channelID in guildID and gives up with ctx.Err() when ctx is
// done. discordgo shares one VoiceConnection per guild, so an abandoned join
// is waited for (its own wait is bounded) and torn down before Dial returns;
// the next join then starts from a clean connection. A join that succeeds
// after the deadline is kept and returned.
func (d *Dialer) Dial(ctx context.Context, guildID, channelID string) (*Conn, error) {
	type result struct {
		vc  *discordgo.VoiceConnection
		err error
	}

	joined := make(chan result, 1)
	go func() {
		vc, err := d.join(guildID, channelID)
		joined <- result{vc: vc, err: err}
	}()

	var r result
	select {
	case r = <-joined:
	case <-ctx.Done():
		d.logger.Warn("voice join outlived its deadline, waiting for it to settle", "guild", guildID, "channel", channelID)
		r = <-joined
		if r.err != nil {
			if r.vc != nil {
				d.leave(r.vc)
			}
			return nil, ctx.Err()
		}
		d.logger.Info("late voice join succeeded", "guild", guildID, "channel", channelID)
	}

	if r.err != nil {
		if r.vc != nil {
			d.leave(r.vc)
		}
		return nil, joinError(r.err)
	}
	return newConn(r.vc, d.cfg, d.logger.With("guild", guildID)), nil
}

// joinError reports discordgo's own join timeout as context.DeadlineExceeded
// so callers can treat both timeouts alike.
func joinError(err error) error {
	if strings.Contains(err.Error(), "timeout waiting for voice") {
		return fmt.Errorf("%v: %w", err, context.DeadlineExceeded)
	}
	return err
}

// Conn is one voice connection with at most one active stream.
type Conn struct {
	vc     *discordgo.VoiceConnection
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	paused atomic.Bool
}

func newConn(vc *discordgo.VoiceConnection, cfg Config, logger *slog.Logger) *Conn {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Bitrate <= 0 {
		cfg.Bitrate = defaultBitrate
	}
	return &Conn{vc: vc, cfg: cfg, logger: logger}
}

// Play starts streaming url, replacing anything already playing.
func (c *Conn) Play(url string) error {
	path, err := exec.LookPath(c.cfg.FFmpegPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	c.Stop()

	ctx, cancel := context.WithCancel(context.Background())

	stream, err := shoutcast.Open(ctx, url)
	if err != nil {
		cancel()
		return fmt.Errorf("open stream: %w", err)
	}
	stream.MetadataCallbackFunc = func(m *shoutcast.Metadata) {
		c.logger.Debug("in-band title changed", "title", m.StreamTitle)
	}

	cmd := exec.CommandContext(ctx, path, ffmpegArgs(c.cfg.Bitrate)...)
	cmd.Stdin = stream
	cmd.Stderr = &logWriter{logger: c.logger}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		stream.Close()
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		stream.Close()
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()
	c.paused.Store(false)

	go c.run(ctx, cmd, stdout, stream, done)

	return nil
}

func (c *Conn) run(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, stream io.Closer, done chan struct{}) {
	defer close(done)

	if err := c.vc.Speaking(true); err != nil {
		c.logger.Warn("error setting speaking state", "err", err)
	}

	if err := c.pump(ctx, stdout); err != nil && ctx.Err() == nil {
		c.logger.Error("error streaming audio", "err", err)
	}

	// Drain so ffmpeg is never blocked on a full pipe, and close the source so
	// the stdin copier returns before Wait.
	_, _ = io.Copy(io.Discard, stdout)
	_ = stream.Close()
	if err := cmd.Wait(); err != nil && ctx.Err() == nil {
		c.logger.Warn("ffmpeg exited", "err", err)
	}

	if err := c.vc.Speaking(false); err != nil {
		c.logger.Debug("error clearing speaking state", "err", err)
	}
}

// pump sends one Ogg page per Opus frame. Frames read while paused are
// dropped so that resuming picks up the live broadcast.
func (c *Conn) pump(ctx context.Context, r io.Reader) error {
	ogg, _, err := oggreader.NewWith(r)
	if err != nil {
		return fmt.Errorf("read ogg header: %w", err)
	}

	for {
		payload, _, err := ogg.ParseNextPage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read ogg page: %w", err)
		}

		if len(payload) == 0 || bytes.HasPrefix(payload, []byte("OpusTags")) {
			continue
		}
		if c.paused.Load() {
			continue
		}

		select {
		case c.vc.OpusSend <- payload:
		case <-ctx.Done():
			return nil
		}
	}
}

// Stop ends the current stream, if any, and waits for it to wind down.
func (c *Conn) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.paused.Store(false)
}

func (c *Conn) active() bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Playing reports whether a stream is running and not paused.
func (c *Conn) Playing() bool {
	return c.active() && !c.paused.Load()
}

// Paused reports whether a stream is running but paused.
func (c *Conn) Paused() bool {
	return c.active() && c.paused.Load()
}

func (c *Conn) Pause() {
	if c.paused.CompareAndSwap(false, true) {
		_ = c.vc.Speaking(false)
	}
}

func (c *Conn) Resume() {
	if c.paused.CompareAndSwap(true, false) {
		_ = c.vc.Speaking(true)
	}
}

// Connected reports whether the voice connection is still established.
func (c *Conn) Connected() bool {
	if c.vc == nil {
		return false
	}
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.Ready
}

// Disconnect stops playback and leaves the channel.
func (c *Conn) Disconnect() error {
	c.Stop()
	if c.vc == nil {
		return nil
	}
	return c.vc.Disconnect()
}

// ffmpegArgs reads the stream from stdin and writes Ogg/Opus to stdout with
// one 20ms frame per page.
func ffmpegArgs(bitrate int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-c:a", "libopus",
		"-b:a", strconv.Itoa(bitrate) + "k",
		"-ar", "48000",
		"-ac", "2",
		"-application", "audio",
		"-frame_duration", "20",
		"-page_duration", "20000",
		"-f", "ogg",
		"pipe:1",
	}
}

// logWriter forwards ffmpeg's stderr to the logger line by line.
type logWriter struct {
	logger *slog.Logger
	buf    []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimSpace(w.buf[:i]); len(line) > 0 {
			w.logger.Warn("ffmpeg", "msg", string(line))
		}
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}
