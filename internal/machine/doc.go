// Package machine persists monitored assets and their model state.
//
// A machine record is the single durable owner of training parameters, the
// mutable run state polled by clients, and the most recent prediction result.
// Storage is SQLite with an embedded schema; parameters and results are kept
// as JSON columns since they are written and read wholesale.
package machine
