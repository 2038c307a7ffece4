// Package activity implements the user activity monitor.
//
// The host reports every watched interaction (pointer, keyboard, touch,
// focus) through [Monitor.OnActivity]. Bursts are collapsed by a token
// bucket so at most one activity per debounce window re-arms the timers.
// Two independent single-shot timers follow every accepted activity: the
// idle timer and the long-idle timer. When one fires, subscribers receive
// a [Signal] with Active set; the next accepted activity clears both flags
// and emits the matching inactive signals.
//
// # Architecture boundaries
//
// The monitor keeps no persistent state and makes no policy decision. The
// session engine subscribes and decides what long idle means.
//
// # What this package must NOT do
//
//   - Import goSession.
//   - Call subscribers while holding the state mutex.
//   - Leave timers armed after Stop.
package activity
