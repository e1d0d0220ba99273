// Package daemon wraps the scheduler in a single-instance process lifecycle.
// A flock-based lock file keeps two daemons from conforming the same library
// at once.
package daemon
