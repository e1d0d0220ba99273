// Package pipeline drives candidates through probe, decide, and convert with
// a bounded worker pool. Each file is an isolated job: failures are recorded
// in the pass summary without stopping other jobs or the pass itself.
package pipeline
