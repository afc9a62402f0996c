// Package shoutcast opens ICY/Shoutcast/Icecast streams for playback.
//
// It is a fork of github.com/romantomjak/shoutcast, adapted for feeding a
// decoder:
//   - Playlist resolution: .pls and .m3u URLs are resolved to the actual stream URL
//   - Metadata stripping: ICY metadata blocks are consumed so only audio bytes are returned
//   - Servers that do not interleave metadata are read through unchanged
//   - Cancellation through the context passed to Open
package shoutcast
