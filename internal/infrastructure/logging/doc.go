// Package logging provides structured logging for Homelink Core.
//
// It wraps log/slog with a configured handler (JSON or text), level
// filtering, and default service/version fields. Components derive
// scoped loggers with With("component", name).
package logging
