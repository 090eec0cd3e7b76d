// Package logging configures slog handlers for console and JSON output and
// provides shared attribute helpers so components log with consistent keys.
package logging
