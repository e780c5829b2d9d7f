// Package maintenance runs periodic registry housekeeping on a cron
// schedule: resyncing the in-memory indexes from storage and compacting the
// store.
//
// Jobs never overlap with themselves (cron.SkipIfStillRunning) and a panic in
// a job is recovered and logged.
package maintenance
