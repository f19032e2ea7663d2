// Package server exposes reel conversations and streaming sessions to a
// browser over HTTP and server-sent events.
package server

// Config is the server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "127.0.0.1:8790")
	ListenAddr string
}
