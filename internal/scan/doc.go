// Package scan discovers candidate media files under a library root. It
// filters by extension and minimum size, skips hidden entries and leftover
// conversion temporaries, and yields a deterministic ordering so repeated
// passes over an unchanged library visit files in the same sequence.
package scan
