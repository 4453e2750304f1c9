package dwp

import (
	"log/slog"
	"time"
)

// Option configures a Server.
type Option func(*Server)

// WithAuth sets the authenticator for the server.
// If not set, NoopAuthenticator is used (development mode).
func WithAuth(auth Authenticator) Option {
	return func(s *Server) { s.auth = auth }
}

// WithCodec sets the default codec for the server.
// Clients can override via the auth frame's format field.
func WithCodec(codec Codec) Option {
	return func(s *Server) { s.defaultCodec = codec }
}

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithPath sets the base path for endpoints. Default is "/dwp".
func WithPath(path string) Option {
	return func(s *Server) { s.basePath = path }
}

// WithAuthTimeout bounds how long a WebSocket client may take to send its
// auth frame. Default is 10s.
func WithAuthTimeout(d time.Duration) Option {
	return func(s *Server) { s.authTimeout = d }
}

// WithWriteTimeout bounds each WebSocket write. Default is 10s.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}
