package shoutcast

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const userAgent = "iTunes/12.9.2 (Macintosh; OS X 10.14.3) AppleWebKit/606.4.5"

// MetadataCallbackFunc is the type of the function called when the stream metadata changes
type MetadataCallbackFunc func(m *Metadata)

// Stream represents an open shoutcast stream.
type Stream struct {
	// The name of the server
	Name string

	// What category the server falls under
	Genre string

	// The description of the stream
	Description string

	// Homepage of the server
	URL string

	// Bitrate of the server
	Bitrate int

	// Optional function to be executed when stream metadata changes
	MetadataCallbackFunc MetadataCallbackFunc

	// Amount of bytes to read before expecting a metadata block. Zero when the
	// server does not interleave metadata.
	metaint int

	// Stream metadata
	metadata *Metadata

	// The number of bytes read since last metadata block
	pos int

	// The underlying data stream
	rc io.ReadCloser
}

// streamClient has a connect timeout but no overall timeout, so a stream can
// be read indefinitely.
func streamClient() *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: 10 * time.Second,
		DisableCompression:    true,
	}
	return &http.Client{Transport: transport}
}

// Open establishes a connection to a remote server. Playlist URLs (.pls,
// .m3u) are resolved to the stream they point at. The stream stays open until
// Close is called or ctx is cancelled.
func Open(ctx context.Context, url string) (*Stream, error) {
	resolvedURL, err := resolvePlaylistURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve playlist URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolvedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Add("accept", "*/*")
	req.Header.Add("user-agent", userAgent)
	req.Header.Add("icy-metadata", "1")

	resp, err := streamClient().Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	// A malformed bitrate header is informational only.
	bitrate, _ := strconv.Atoi(resp.Header.Get("icy-br"))

	var metaint int
	if raw := resp.Header.Get("icy-metaint"); raw != "" {
		metaint, err = strconv.Atoi(raw)
		if err != nil || metaint < 0 {
			resp.Body.Close()
			return nil, fmt.Errorf("cannot parse metaint %q", raw)
		}
	}

	s := &Stream{
		Name:        resp.Header.Get("icy-name"),
		Genre:       resp.Header.Get("icy-genre"),
		Description: resp.Header.Get("icy-description"),
		URL:         resolvedURL,
		Bitrate:     bitrate,
		metaint:     metaint,
		rc:          resp.Body,
	}

	return s, nil
}

// Read implements io.Reader, returning audio bytes only. Interleaved
// metadata blocks are consumed and reported through MetadataCallbackFunc.
func (s *Stream) Read(buf []byte) (int, error) {
	if s.metaint == 0 {
		return s.rc.Read(buf)
	}

	if s.pos == s.metaint {
		if err := s.readMetadata(); err != nil {
			return 0, err
		}
		s.pos = 0
	}

	want := len(buf)
	if remaining := s.metaint - s.pos; want > remaining {
		want = remaining
	}

	n, err := s.rc.Read(buf[:want])
	s.pos += n
	return n, err
}

// readMetadata consumes one length-prefixed metadata block.
func (s *Stream) readMetadata() error {
	var length [1]byte
	if _, err := io.ReadFull(s.rc, length[:]); err != nil {
		return err
	}

	size := int(length[0]) * 16
	if size == 0 {
		return nil
	}

	block := make([]byte, size)
	if _, err := io.ReadFull(s.rc, block); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}

	if m := NewMetadata(block); !m.Equals(s.metadata) {
		s.metadata = m
		if s.MetadataCallbackFunc != nil {
			s.MetadataCallbackFunc(m)
		}
	}

	return nil
}

// Metadata returns the last metadata block seen, or nil.
func (s *Stream) Metadata() *Metadata {
	return s.metadata
}

// Close closes the stream
func (s *Stream) Close() error {
	return s.rc.Close()
}
