// Package scheduler turns configuration into library passes. Cron mode runs
// one pass and reports failures through the exit path; continuous mode loops
// forever with an idle interval, never overlapping passes.
package scheduler
