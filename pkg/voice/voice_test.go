package voice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

func TestConn_PlayWithoutFFmpeg(t *testing.T) {
	c := newConn(nil, Config{FFmpegPath: "/nonexistent/ffmpeg"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := c.Play("http://example.com/stream")
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if c.Playing() || c.Paused() {
		t.Error("expected nothing to be playing after a failed start")
	}
}

func TestConn_IdleState(t *testing.T) {
	c := newConn(nil, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Stop and Disconnect on an idle connection are no-ops.
	c.Stop()
	if err := c.Disconnect(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if c.Connected() {
		t.Error("expected a nil voice connection to report disconnected")
	}
	if c.cfg.FFmpegPath != "ffmpeg" || c.cfg.Bitrate != defaultBitrate {
		t.Errorf("unexpected defaults %+v", c.cfg)
	}
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs(64)

	for _, want := range [][]string{
		{"-i", "pipe:0"},
		{"-c:a", "libopus"},
		{"-b:a", "64k"},
		{"-ar", "48000"},
		{"-ac", "2"},
		{"-f", "ogg"},
	} {
		i := slices.Index(args, want[0])
		if i < 0 || i+1 >= len(args) || args[i+1] != want[1] {
			t.Errorf("expected %s %s in %v", want[0], want[1], args)
		}
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("expected output to stdout, got %q", args[len(args)-1])
	}
}

func TestLogWriter(t *testing.T) {
	var out bytes.Buffer
	w := &logWriter{logger: slog.New(slog.NewTextHandler(&out, nil))}

	w.Write([]byte("first li"))
	if out.Len() != 0 {
		t.Fatalf("expected partial lines to be buffered, got %q", out.String())
	}
	w.Write([]byte("ne\n\nsecond line\n"))

	logged := out.String()
	if !strings.Contains(logged, "first line") || !strings.Contains(logged, "second line") {
		t.Errorf("expected both lines to be logged, got %q", logged)
	}
	if strings.Count(logged, "\n") != 2 {
		t.Errorf("expected blank lines to be skipped, got %q", logged)
	}
}

func TestJoinError(t *testing.T) {
	err := joinError(errors.New("timeout waiting for voice"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected join timeout to match context.DeadlineExceeded, got %v", err)
	}

	other := errors.New("unknown channel")
	if got := joinError(other); got != other {
		t.Errorf("expected other errors to pass through, got %v", got)
	}
}

// guildVoice hands every join for a guild the same connection, like the
// gateway session does. The first join blocks until slow is closed.
type guildVoice struct {
	mu     sync.Mutex
	vc     *discordgo.VoiceConnection
	slow   chan struct{}
	lateOK bool
	joins  int
	leaves int
	live   bool
}

func newGuildVoice() *guildVoice {
	return &guildVoice{vc: &discordgo.VoiceConnection{}, slow: make(chan struct{})}
}

func (g *guildVoice) join(_, _ string) (*discordgo.VoiceConnection, error) {
	g.mu.Lock()
	g.joins++
	first := g.joins == 1
	g.mu.Unlock()

	if first {
		<-g.slow
		if !g.lateOK {
			return g.vc, errors.New("timeout waiting for voice")
		}
	}

	g.mu.Lock()
	g.live = true
	g.mu.Unlock()
	return g.vc, nil
}

func (g *guildVoice) leave(*discordgo.VoiceConnection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaves++
	g.live = false
}

func (g *guildVoice) dialer() *Dialer {
	return &Dialer{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		join:   g.join,
		leave:  g.leave,
	}
}

func TestDialer_RetryAfterSlowJoin(t *testing.T) {
	g := newGuildVoice()
	d := g.dialer()

	time.AfterFunc(50*time.Millisecond, func() { close(g.slow) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := d.Dial(ctx, "guild-1", "voice-1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the first dial to time out, got %v", err)
	}

	conn, err := d.Dial(context.Background(), "guild-1", "voice-1")
	if err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if conn.vc != g.vc {
		t.Error("expected the retry to hold the guild's connection")
	}

	// Nothing from the abandoned join may tear the new connection down.
	time.Sleep(20 * time.Millisecond)

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.live {
		t.Error("expected the retried connection to still be live")
	}
	if g.leaves != 1 {
		t.Errorf("expected the failed join to be torn down once, got %d", g.leaves)
	}
}

func TestDialer_LateJoinKept(t *testing.T) {
	g := newGuildVoice()
	g.lateOK = true
	d := g.dialer()

	time.AfterFunc(30*time.Millisecond, func() { close(g.slow) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	conn, err := d.Dial(ctx, "guild-1", "voice-1")
	if err != nil {
		t.Fatalf("expected the late join to be returned, got %v", err)
	}
	if conn.vc != g.vc {
		t.Error("expected the joined connection")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.leaves != 0 || !g.live {
		t.Errorf("expected the late join to stay connected, leaves=%d live=%v", g.leaves, g.live)
	}
}
