package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("config: failed to parse environment variables")

	// ErrNilPointer is returned when a nil pointer is provided to the loader.
	ErrNilPointer = errors.New("config: nil pointer provided to loader")

	// ErrMissingJWTSecret is returned when production runs without a signing key.
	ErrMissingJWTSecret = errors.New("config: JWT_SECRET is required in production")

	// ErrUnknownEnvironment is returned when NODE_ENV or APP_ENV names no known environment.
	ErrUnknownEnvironment = errors.New("config: unknown environment")

	// ErrConflictingEnvironment is returned when APP_ENV and NODE_ENV disagree about production.
	ErrConflictingEnvironment = errors.New("config: APP_ENV and NODE_ENV disagree about production")

	// ErrInvalidValue is returned for values outside their allowed range.
	ErrInvalidValue = errors.New("config: invalid value")
)
