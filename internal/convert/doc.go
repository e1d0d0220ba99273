// Package convert executes REPACK and TRANSCODE decisions. It builds the
// ffmpeg argument list from the decision plans, writes to a hidden temporary
// file next to the source, verifies the result, and atomically renames it
// over the original. Every failure path removes the temporary file and leaves
// the original untouched.
package convert
