// Package notifier is the alert delivery pool.
//
// Alerts are queued as jobs and executed by a fixed set of workers owned by
// a supervisor. Each job gets its own timeout and panics are contained, so a
// slow or failing delivery never holds up the others. There is no retry, no
// rate limit and no dedup: a failed alert is reported and forgotten.
//
// # Transport
//
// Private alerts are sent through a transport.Adapter (the Telegram adapter
// in production) to the user's private chat.
//
// # History
//
// The service keeps a short in-memory history of recent deliveries for the
// debug server.
package notifier
