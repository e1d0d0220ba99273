// Package logging builds the slog loggers used across conform and provides
// attribute helpers so call sites stay terse. It supports a compact colored
// console format for interactive use and a JSON format for service managers,
// with optional file mirroring under the configured log directory.
package logging
