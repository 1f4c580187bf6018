// Package logging provides structured logging for Fieldtrace Core.
//
// It wraps log/slog with service defaults so every component logs in the
// same shape: JSON (or text) records carrying the service name, version,
// and whatever component attributes callers attach via With.
package logging
