package config

import "errors"

var (
	ErrNilPointer     = errors.New("config: nil pointer provided to loader")
	ErrParsingConfig  = errors.New("config: failed to parse environment")
	ErrInvalidConfig  = errors.New("config: invalid configuration")
	ErrLoadingEnvFile = errors.New("config: failed to load env file")
)
