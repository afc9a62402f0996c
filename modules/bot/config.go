package bot

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultFFmpegPath     = "ffmpeg"
	defaultConnectTimeout = 10 * time.Second
	defaultCommandTimeout = 30 * time.Second
	defaultBitrate        = 96
)

type Config struct {
	Token          string        `yaml:"token,omitempty"`
	GuildID        string        `yaml:"guild-id,omitempty"` // register commands in one guild only; empty registers them globally
	FFmpegPath     string        `yaml:"ffmpeg-path,omitempty"`
	ConnectTimeout time.Duration `yaml:"connect-timeout,omitempty"`
	CommandTimeout time.Duration `yaml:"command-timeout,omitempty"`
	Bitrate        int           `yaml:"bitrate,omitempty"` // Opus bitrate in kbps
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Token, util.PrefixConfig(prefix, "token"), "", "Discord bot token. DISCORD_TOKEN in the environment takes precedence.")
	f.StringVar(&cfg.GuildID, util.PrefixConfig(prefix, "guild-id"), "", "Register slash commands in this guild only")
	f.StringVar(&cfg.FFmpegPath, util.PrefixConfig(prefix, "ffmpeg-path"), defaultFFmpegPath, "Path to the ffmpeg binary")
	f.DurationVar(&cfg.ConnectTimeout, util.PrefixConfig(prefix, "connect-timeout"), defaultConnectTimeout, "Timeout for one voice channel connection attempt")
	f.DurationVar(&cfg.CommandTimeout, util.PrefixConfig(prefix, "command-timeout"), defaultCommandTimeout, "Overall timeout for handling one slash command")
	f.IntVar(&cfg.Bitrate, util.PrefixConfig(prefix, "bitrate"), defaultBitrate, "Opus bitrate in kbps sent to the voice channel")
}
