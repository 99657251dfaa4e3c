package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound = errors.New("session not found")
	ErrConflict = errors.New("session version conflict")
	ErrCodec    = errors.New("sample codec error")
)
