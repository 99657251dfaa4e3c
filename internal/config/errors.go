package config

import "errors"

// ErrInvalidConfig is wrapped by Validate; ErrLoadConfig by Load when a
// file or the environment cannot be read.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
