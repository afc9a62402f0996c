package shoutcast

import (
	"bytes"
	"strings"
)

// Metadata is one in-band ICY metadata block.
type Metadata struct {
	// Title of the current song or programme
	StreamTitle string

	// Optional URL announced alongside the title
	StreamURL string
}

// NewMetadata parses a raw metadata block of the form
// StreamTitle='...';StreamUrl='...'; with trailing NUL padding.
func NewMetadata(b []byte) *Metadata {
	m := &Metadata{}
	s := string(bytes.TrimRight(b, "\x00"))

	for len(s) > 0 {
		key, rest, ok := strings.Cut(s, "='")
		if !ok {
			break
		}
		// Titles may contain "'", so the value ends at the first "';" only.
		value, next, found := strings.Cut(rest, "';")
		if !found {
			value = strings.TrimSuffix(rest, "'")
			next = ""
		}

		switch strings.TrimSpace(key) {
		case "StreamTitle":
			m.StreamTitle = value
		case "StreamUrl":
			m.StreamURL = value
		}
		s = next
	}

	return m
}

// Equals reports whether m and other carry the same title and URL.
func (m *Metadata) Equals(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.StreamTitle == other.StreamTitle && m.StreamURL == other.StreamURL
}
