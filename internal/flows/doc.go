// Package flows holds the pure decision functions behind the session
// engine's startup and return-from-background transitions.
//
// # Architecture boundaries
//
// Each Run* function takes a fully materialized input (what the credential
// store returned, the clock, the configured thresholds) and returns an
// outcome. The root engine performs every read, write and state transition;
// flows never touch storage, the network or timers.
//
// # What this package must NOT do
//
//   - Import goSession or store.
//   - Read the clock; Now is always supplied.
//   - Hold state between calls.
package flows
