package httpserver

import "errors"

var (
	ErrStart    = errors.New("httpserver: failed to start")
	ErrShutdown = errors.New("httpserver: failed to shut down gracefully")
	ErrRunning  = errors.New("httpserver: already running")
)
