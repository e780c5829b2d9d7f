// Package alert is the keyword alert engine.
//
// It owns the per-user keyword registry, the per-user channel exclusion
// registry, the substring match evaluation run against every incoming group
// message and the dispatch of private alerts for every surviving hit.
//
// Matching is plain case-insensitive substring containment: both keywords and
// message text are lowercased and trimmed once, empty keywords never match and
// duplicate registrations produce one hit per registration.
//
// Delivery is best-effort. Exclusion, resolution and send failures never reach
// the caller of Engine.EvaluateAndNotify; they are reported as typed Results
// to an optional Reporter instead.
package alert
