// Package services defines the shared error taxonomy for run failures.
//
// Errors are tagged with sentinel markers (validation, configuration,
// timeout, protocol, external tool) so callers can classify a failure without
// string matching, and mapped onto the terse messages persisted into run
// state. Detailed diagnostics stay in the logs.
package services
