// Package probe runs ffprobe against a single media file and parses its JSON
// output into a stream metadata record. Execution is bounded by a timeout and
// goes through an injectable Executor so tests never spawn real processes.
package probe
