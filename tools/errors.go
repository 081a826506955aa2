package tools

import "errors"

var (
	// ErrToolNotFound is returned when a tool name is not in the
	// fetched catalog.
	ErrToolNotFound = errors.New("tool not found")

	// ErrCatalogUnavailable is returned when the tool catalog cannot
	// be fetched from the backend.
	ErrCatalogUnavailable = errors.New("tool catalog unavailable")

	// ErrExecution is returned when the execution request itself
	// fails; it does not cover tools that run and report failure.
	ErrExecution = errors.New("tool execution failed")
)
