// Package mlproc launches the external Python model runners and decodes
// their line-oriented stdout protocol.
//
// Runner scripts are invoked as `python3 <script> <owner> <machine> <csv>`
// with per-run overrides passed through the environment. Stdout carries
// marker-prefixed JSON events (PROGRESS:, DETAILED:, HEARTBEAT:, SUCCESS:,
// ERROR:) interleaved with free-form log lines; Parser extracts the events
// and guards the stream invariants (monotone progress, first success wins).
// Runner enforces the per-operation deadline and maps process failures onto
// the shared service error taxonomy.
package mlproc
