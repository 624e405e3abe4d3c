// Package logging builds the slog loggers used across forge and defines the
// standardized attribute keys carried through run contexts.
package logging
