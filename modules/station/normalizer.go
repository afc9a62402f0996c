package station

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Document is the parsed body of an Icecast status-json response. Only the
// top level is decoded eagerly; the icestats object is interpreted by
// Normalize so that a bad shape becomes ErrMalformedStatus rather than a
// decode error.
type Document struct {
	Icestats json.RawMessage `json:"icestats"`
}

// ParseDocument decodes a status response body.
func ParseDocument(b []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Matcher picks one source out of a multi-mount status document.
type Matcher struct {
	// StreamID is matched as a substring of each source's listenurl,
	// typically the mount path of the stream being played.
	StreamID string
	// StationName is matched against each source's server_name.
	StationName string
}

type icestats struct {
	Admin       text    `json:"admin"`
	Host        text    `json:"host"`
	ServerID    text    `json:"server_id"`
	ServerStart text    `json:"server_start"`
	Source      sources `json:"source"`
}

type source struct {
	AudioInfo          text   `json:"audio_info"`
	Genre              text   `json:"genre"`
	Listeners          number `json:"listeners"`
	ListenerPeak       number `json:"listener_peak"`
	ListenURL          text   `json:"listenurl"`
	ServerDescription  text   `json:"server_description"`
	ServerName         text   `json:"server_name"`
	ServerType         text   `json:"server_type"`
	ServerURL          text   `json:"server_url"`
	StreamStart        text   `json:"stream_start"`
	Title              text   `json:"title"`
	YPCurrentlyPlaying text   `json:"yp_currently_playing"`
}

type sourceShape int

const (
	shapeMissing sourceShape = iota
	shapeSingle
	shapeList
	shapeInvalid
)

// sources holds the "source" field, which Icecast renders as a bare object
// when a single mount is live and as an array otherwise.
type sources struct {
	shape  sourceShape
	single source
	list   []source
}

func (s *sources) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		s.shape = shapeMissing
	case b[0] == '{':
		if err := json.Unmarshal(b, &s.single); err != nil {
			s.shape = shapeInvalid
			return nil
		}
		s.shape = shapeSingle
	case b[0] == '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			s.shape = shapeInvalid
			return nil
		}
		s.shape = shapeList
		for _, r := range raw {
			var src source
			if err := json.Unmarshal(r, &src); err != nil {
				continue
			}
			s.list = append(s.list, src)
		}
	default:
		s.shape = shapeInvalid
	}
	return nil
}

// text accepts a JSON string, number or bool and keeps its textual form.
// Anything else decodes to the empty string.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*t = text(s)
		}
	case '{', '[', 'n':
	default:
		*t = text(b)
	}
	return nil
}

// number accepts a JSON number or a numeric string.
type number struct {
	value int
	valid bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
	}
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		n.value, n.valid = v, true
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		n.value, n.valid = int(f), true
	}
	return nil
}

func (n number) ptr() *int {
	if !n.valid {
		return nil
	}
	v := n.value
	return &v
}

// Normalize turns a status document into a Status. Only an unusable
// top-level shape is an error; missing or garbled optional fields degrade
// to their zero values independently of each other.
func Normalize(doc Document, m Matcher, defaultTitle string) (Status, error) {
	raw := bytes.TrimSpace(doc.Icestats)
	if len(raw) == 0 || raw[0] != '{' {
		return Status{}, malformed("icestats missing")
	}

	var stats icestats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return Status{}, malformed("icestats: %v", err)
	}

	src, err := selectSource(stats.Source, m)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Title:       firstNonEmpty(string(src.YPCurrentlyPlaying), string(src.Title), defaultTitle),
		Genre:       string(src.Genre),
		BitrateKbps: parseBitrate(string(src.AudioInfo)),

		Admin:              string(stats.Admin),
		Host:               string(stats.Host),
		ServerID:           string(stats.ServerID),
		ServerStart:        string(stats.ServerStart),
		StreamStart:        string(src.StreamStart),
		ListenURL:          string(src.ListenURL),
		ServerName:         string(src.ServerName),
		ServerDescription:  string(src.ServerDescription),
		ServerURL:          string(src.ServerURL),
		ServerType:         string(src.ServerType),
		ListenerPeak:       src.ListenerPeak.ptr(),
		YPCurrentlyPlaying: string(src.YPCurrentlyPlaying),
	}

	if src.Listeners.valid && src.Listeners.value > 0 {
		status.Listeners = src.Listeners.value
	}

	return status, nil
}

func selectSource(s sources, m Matcher) (source, error) {
	switch s.shape {
	case shapeSingle:
		return s.single, nil
	case shapeList:
		if len(s.list) == 0 {
			return source{}, malformed("source list is empty")
		}
		if m.StreamID != "" {
			for _, src := range s.list {
				if strings.Contains(string(src.ListenURL), m.StreamID) {
					return src, nil
				}
			}
		}
		if name := strings.TrimSpace(m.StationName); name != "" {
			for _, src := range s.list {
				if strings.EqualFold(strings.TrimSpace(string(src.ServerName)), name) {
					return src, nil
				}
			}
		}
		return s.list[0], nil
	case shapeMissing:
		return source{}, malformed("source missing")
	default:
		return source{}, malformed("source is neither an object nor a list")
	}
}

// parseBitrate reads the bitrate key out of an audio_info string such as
// "bitrate=96;channels=2" or "channels=2,bitrate=96". Only the exact key
// "bitrate" is recognised.
func parseBitrate(info string) *int {
	for _, kv := range strings.FieldsFunc(info, func(r rune) bool { return r == ',' || r == ';' }) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) != "bitrate" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			return nil
		}
		return &n
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
