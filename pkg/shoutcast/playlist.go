package shoutcast

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxPlaylistSize bounds how much of a non-stream response is read when
// looking for a playlist.
const maxPlaylistSize = 64 * 1024

// parsePLS parses a PLS playlist file and returns the first stream URL
func parsePLS(body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "File") {
			continue
		}
		if _, url, ok := strings.Cut(line, "="); ok {
			if url = strings.TrimSpace(url); url != "" {
				return url, nil
			}
		}
	}

	return "", fmt.Errorf("no stream URL found in PLS playlist")
}

// parseM3U parses an M3U playlist file and returns the first stream URL
func parseM3U(body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read playlist: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			return line, nil
		}
	}

	return "", fmt.Errorf("no stream URL found in M3U playlist")
}

// isAudioContentType reports whether the response is already an audio stream.
func isAudioContentType(contentType string) bool {
	contentType = strings.ToLower(contentType)
	for _, prefix := range []string{"audio/mpeg", "audio/aac", "audio/aacp", "audio/ogg", "application/ogg", "audio/opus", "audio/flac"} {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

// resolvePlaylistURL checks if the URL is a playlist file and resolves it to a stream URL
func resolvePlaylistURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Add("accept", "*/*")
	req.Header.Add("user-agent", userAgent)

	resp, err := streamClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")

	// Streams announce themselves with ICY headers or an audio content type;
	// never read their body here, it does not end.
	if resp.Header.Get("icy-metaint") != "" || resp.Header.Get("icy-name") != "" || isAudioContentType(contentType) {
		return url, nil
	}

	bodyData, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	content := string(bodyData)

	isPLS := strings.Contains(contentType, "audio/x-scpls") ||
		strings.Contains(contentType, "application/pls+xml") ||
		strings.HasSuffix(url, ".pls") ||
		strings.Contains(content, "[playlist]") ||
		strings.Contains(content, "File1=")

	isM3U := strings.Contains(contentType, "audio/mpegurl") ||
		strings.Contains(contentType, "audio/x-mpegurl") ||
		strings.Contains(contentType, "application/vnd.apple.mpegurl") ||
		strings.HasSuffix(url, ".m3u") ||
		strings.HasSuffix(url, ".m3u8") ||
		strings.Contains(content, "#EXTM3U") ||
		strings.HasPrefix(strings.TrimSpace(content), "http://") ||
		strings.HasPrefix(strings.TrimSpace(content), "https://")

	switch {
	case isPLS:
		streamURL, err := parsePLS(strings.NewReader(content))
		if err != nil {
			return "", fmt.Errorf("failed to parse PLS playlist: %w", err)
		}
		return streamURL, nil
	case isM3U:
		streamURL, err := parseM3U(strings.NewReader(content))
		if err != nil {
			return "", fmt.Errorf("failed to parse M3U playlist: %w", err)
		}
		return streamURL, nil
	}

	return "", fmt.Errorf("URL does not appear to be a stream or playlist (Content-Type: %s)", contentType)
}
