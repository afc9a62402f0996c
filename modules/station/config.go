package station

import (
	"flag"
	"net/url"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultStatusURL       = "http://stream01048.westreamradio.com/status-json.xsl"
	defaultStationName     = "WSM 650 AM"
	defaultRefreshInterval = 30 * time.Second
	defaultFetchTimeout    = 10 * time.Second
	defaultUserAgent       = "wsmbot"
)

type Config struct {
	StatusURL       string        `yaml:"status-url,omitempty"`
	StreamURL       string        `yaml:"stream-url,omitempty"`
	Name            string        `yaml:"name,omitempty"`
	StreamID        string        `yaml:"stream-id,omitempty"` // matched against listenurl when the server reports several mounts
	RefreshInterval time.Duration `yaml:"refresh-interval,omitempty"`
	FetchTimeout    time.Duration `yaml:"fetch-timeout,omitempty"`
	UserAgent       string        `yaml:"user-agent,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.StatusURL, util.PrefixConfig(prefix, "status-url"), defaultStatusURL, "The Icecast status-json endpoint to poll")
	f.StringVar(&cfg.StreamURL, util.PrefixConfig(prefix, "stream-url"), "", "The URL of the audio stream to play")
	f.StringVar(&cfg.Name, util.PrefixConfig(prefix, "name"), defaultStationName, "Station name, used as the fallback title")
	f.StringVar(&cfg.StreamID, util.PrefixConfig(prefix, "stream-id"), "", "Substring of the listen URL that identifies our mount. Defaults to the stream URL path.")
	f.DurationVar(&cfg.RefreshInterval, util.PrefixConfig(prefix, "refresh-interval"), defaultRefreshInterval, "How often to refresh the station status")
	f.DurationVar(&cfg.FetchTimeout, util.PrefixConfig(prefix, "fetch-timeout"), defaultFetchTimeout, "Timeout for one status request")
	f.StringVar(&cfg.UserAgent, util.PrefixConfig(prefix, "user-agent"), defaultUserAgent, "User-Agent sent to the status endpoint")
}

// matcher builds the source matcher, deriving the stream id from the stream
// URL path when none is configured.
func (cfg *Config) matcher() Matcher {
	id := cfg.StreamID
	if id == "" && cfg.StreamURL != "" {
		if u, err := url.Parse(cfg.StreamURL); err == nil && u.Path != "" && u.Path != "/" {
			id = u.Path
		}
	}
	return Matcher{StreamID: id, StationName: cfg.Name}
}
