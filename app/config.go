package app

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/grafana/dskit/flagext"
	"github.com/grafana/dskit/server"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/zachfi/zkit/pkg/tracing"

	"github.com/zachfi/wsmbot/modules/bot"
	"github.com/zachfi/wsmbot/modules/station"
)

type Config struct {
	Target  string         `yaml:"target"`
	Log     LogConfig      `yaml:"log,omitempty"`
	Tracing tracing.Config `yaml:"tracing,omitempty"`
	Server  server.Config  `yaml:"server,omitempty"`
	Station station.Config `yaml:"station,omitempty"`
	Bot     bot.Config     `yaml:"bot,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"` // appended to in addition to stdout
}

// SlogLevel parses the configured level name.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return level, nil
}

// LoadFile overlays the YAML file onto c. Keys the file does not set keep
// their current values, so defaults and flags registered earlier survive.
func (c *Config) LoadFile(file string) error {
	filename, _ := filepath.Abs(file)

	buff, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", file)
	}

	if err := yaml.UnmarshalStrict(buff, c); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", file)
	}

	return nil
}

// runsBot reports whether the target includes the bot module.
func (c *Config) runsBot() bool {
	switch c.Target {
	case "", All, Bot:
		return true
	}
	return false
}

// Validate reports settings the bot cannot start without.
func (c *Config) Validate() error {
	if c.runsBot() && c.Bot.Token == "" {
		return bot.ErrMissingToken
	}
	if c.runsBot() && c.Station.StreamURL == "" {
		return errors.New("station.stream-url is required")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Target, "target", All, "The module to run: all, station or bot.")

	flagext.DefaultValues(&c.Server)
	f.IntVar(&c.Server.HTTPListenPort, "server.http-listen-port", 3030, "HTTP server listen port.")
	f.IntVar(&c.Server.GRPCListenPort, "server.grpc-listen-port", 9090, "gRPC server listen port.")

	f.StringVar(&c.Log.Level, "log.level", "info", "Log level: debug, info, warn or error.")
	f.StringVar(&c.Log.File, "log.file", "", "Also append logs to this file.")

	c.Tracing.RegisterFlagsAndApplyDefaults("tracing", f)
	c.Station.RegisterFlagsAndApplyDefaults("station", f)
	c.Bot.RegisterFlagsAndApplyDefaults("bot", f)
}
