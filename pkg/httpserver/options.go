package httpserver

import (
	"log/slog"
	"net"
)

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithListenHook is called with the bound address once the listener is
// open, before requests are served.
func WithListenHook(fn func(net.Addr)) Option {
	return func(s *Server) {
		if fn != nil {
			s.onListen = append(s.onListen, fn)
		}
	}
}

// WithStopHook runs after the server has shut down.
func WithStopHook(fn func()) Option {
	return func(s *Server) {
		if fn != nil {
			s.onStop = append(s.onStop, fn)
		}
	}
}
