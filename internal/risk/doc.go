// Package risk derives health, remaining-useful-life, and risk metrics from
// raw anomaly scores produced by the model runner.
//
// All functions are pure: the same score and threshold always produce the same
// metrics, with no clock, store, or process dependencies. Non-positive
// thresholds fall back to 1.0 rather than failing, since a prediction result
// is still useful even when the stored model parameters are degenerate.
package risk
