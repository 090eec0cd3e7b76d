// Package daemon wires the machine store and run supervisor into a
// single-instance background service.
//
// A file lock in the log directory enforces one daemon per host. On startup
// any machine left mid-run by a crashed instance is marked failed so clients
// never poll a run that no process owns.
package daemon
