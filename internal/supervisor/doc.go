// Package supervisor orchestrates training and prediction runs.
//
// It enforces one run per machine, resolves run configuration (sensor column
// and threshold precedence) once at run start, stages input files into the
// scratch directory, persists progress to the machine store as the external
// process reports it, and derives health metrics from prediction output.
// Training runs are fire-and-forget with a pollable status; predictions are
// synchronous.
package supervisor
