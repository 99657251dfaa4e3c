package analysis

import "errors"

var (
	// ErrNoSteps is returned when no peak-trough-peak pattern qualifies as a step.
	ErrNoSteps = errors.New("no steps detected")
	// ErrInsufficientData is returned when the steps found cannot fill every
	// averaging bucket.
	ErrInsufficientData = errors.New("insufficient data for average step")
)
