package tools

import "errors"

// Tool registry and sandbox errors.
var (
	// ErrToolNotFound is returned when a tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty is returned when a tool has no name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no execute function.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrToolAlreadyRegistered is returned when registering a duplicate.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrMissingRequiredArg is returned when a required argument is missing.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType is returned when an argument has the wrong type.
	ErrInvalidArgType = errors.New("invalid argument type")

	// ErrPathNotAllowed is returned when a path escapes the sandbox.
	ErrPathNotAllowed = errors.New("path not allowed")

	// ErrFileNotFound is returned when a target file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrIOFailure wraps filesystem and subprocess failures.
	ErrIOFailure = errors.New("io failure")

	// ErrInvalidPattern is returned for malformed search patterns.
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrTimeout is returned when a subprocess exceeds its deadline.
	ErrTimeout = errors.New("timeout")
)
