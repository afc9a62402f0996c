package app

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zachfi/wsmbot/modules/bot"
)

func defaultConfig(t *testing.T, args ...string) Config {
	t.Helper()

	cfg := Config{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlagsAndApplyDefaults("", fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("unexpected flag error: %v", err)
	}
	return cfg
}

func TestConfig_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	if cfg.Server.HTTPListenPort != 3030 {
		t.Errorf("expected http port 3030, got %d", cfg.Server.HTTPListenPort)
	}
	if cfg.Station.Name != "WSM 650 AM" {
		t.Errorf("unexpected station name %q", cfg.Station.Name)
	}
	if cfg.Station.RefreshInterval != 30*time.Second {
		t.Errorf("expected 30s refresh interval, got %s", cfg.Station.RefreshInterval)
	}
	if cfg.Bot.ConnectTimeout != 10*time.Second {
		t.Errorf("expected 10s connect timeout, got %s", cfg.Bot.ConnectTimeout)
	}
	if cfg.Bot.Bitrate != 96 {
		t.Errorf("expected 96 kbps, got %d", cfg.Bot.Bitrate)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil || level != slog.LevelInfo {
		t.Errorf("expected info level, got %v (%v)", level, err)
	}
}

func TestConfig_Flags(t *testing.T) {
	cfg := defaultConfig(t,
		"-station.stream-url", "http://stream.example.com/wsm",
		"-station.refresh-interval", "1m",
		"-bot.guild-id", "1234",
		"-log.level", "debug",
	)

	if cfg.Station.StreamURL != "http://stream.example.com/wsm" {
		t.Errorf("unexpected stream url %q", cfg.Station.StreamURL)
	}
	if cfg.Station.RefreshInterval != time.Minute {
		t.Errorf("expected 1m refresh interval, got %s", cfg.Station.RefreshInterval)
	}
	if cfg.Bot.GuildID != "1234" {
		t.Errorf("unexpected guild id %q", cfg.Bot.GuildID)
	}
	if level, _ := cfg.Log.SlogLevel(); level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", level)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name: "valid",
		},
		{
			name:    "missing token",
			mutate:  func(c *Config) { c.Bot.Token = "" },
			wantErr: true,
		},
		{
			name:    "missing stream url",
			mutate:  func(c *Config) { c.Station.StreamURL = "" },
			wantErr: true,
		},
		{
			name: "station only without bot settings",
			mutate: func(c *Config) {
				c.Target = Station
				c.Bot.Token = ""
				c.Station.StreamURL = ""
			},
		},
		{
			name: "bot target without token",
			mutate: func(c *Config) {
				c.Target = Bot
				c.Bot.Token = ""
			},
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			cfg.Bot.Token = "token"
			cfg.Station.StreamURL = "http://stream.example.com/wsm"
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}

			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("expected error=%v, got %v", tc.wantErr, err)
			}
		})
	}

	cfg := defaultConfig(t)
	cfg.Station.StreamURL = "http://stream.example.com/wsm"
	if err := cfg.Validate(); !errors.Is(err, bot.ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestConfig_LoadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	data := `
target: all
station:
  stream-url: http://stream.example.com/wsm
  name: WSM
bot:
  guild-id: "42"
  bitrate: 64
`
	if err := os.WriteFile(file, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := defaultConfig(t)
	if err := cfg.LoadFile(file); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Station.Name != "WSM" || cfg.Station.StreamURL != "http://stream.example.com/wsm" {
		t.Errorf("unexpected station config %+v", cfg.Station)
	}
	if cfg.Bot.GuildID != "42" || cfg.Bot.Bitrate != 64 {
		t.Errorf("unexpected bot config %+v", cfg.Bot)
	}

	// Keys absent from the file keep their defaults.
	if cfg.Station.RefreshInterval != 30*time.Second {
		t.Errorf("expected the default refresh interval to survive, got %s", cfg.Station.RefreshInterval)
	}
	if cfg.Bot.ConnectTimeout != 10*time.Second {
		t.Errorf("expected the default connect timeout to survive, got %s", cfg.Bot.ConnectTimeout)
	}
}

func TestConfig_LoadFileUnknownKey(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(file, []byte("ripper:\n  url: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := defaultConfig(t)
	if err := cfg.LoadFile(file); err == nil {
		t.Error("expected an error for an unknown key")
	}
}

func TestConfig_LoadFileMissing(t *testing.T) {
	cfg := defaultConfig(t)
	if err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
