package config

import "errors"

var (
	// ErrInvalidObjectFormat is returned when extensions.objectFormat names
	// a hash kind this module does not implement.
	ErrInvalidObjectFormat = errors.New("config: invalid object format")
	// ErrInvalidBoolean is returned when a value is requested as a boolean
	// but does not match any of the recognized spellings.
	ErrInvalidBoolean = errors.New("config: invalid boolean value")
	// ErrInvalidInteger is returned when a value is requested as an integer
	// but does not parse, with or without a k/m/g suffix.
	ErrInvalidInteger = errors.New("config: invalid integer value")
	// ErrInvalidColor is returned when a value is requested as a color but
	// does not match the accepted color grammar.
	ErrInvalidColor = errors.New("config: invalid color value")
	// ErrIncludeDepthExceeded is returned when resolving include/includeIf
	// directives recurses past the configured maximum depth.
	ErrIncludeDepthExceeded = errors.New("config: include depth exceeded")
	// ErrMalformed is returned for syntactically invalid config text.
	ErrMalformed = errors.New("config: malformed")
)
