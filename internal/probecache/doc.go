// Package probecache persists per-file decisions keyed by path, size, and
// modification time. Unchanged files that were already conformed can skip
// ffprobe entirely on subsequent library passes; any on-disk change makes the
// key miss and forces a fresh probe.
package probecache
