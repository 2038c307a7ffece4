// Package limiters provides attempt limiters for security-sensitive local
// operations.
//
// # Limiters
//
//   - [UnlockLimiter] counts consecutive failed lock-screen unlocks and
//     refuses local verification once the threshold is reached inside the
//     cooldown window.
//
// All limiters are nil-safe: calling any method on a nil receiver is a
// no-op that allows the attempt.
//
// # Architecture boundaries
//
// Limiters persist their counters through the credential store so the
// count survives a restart. Policy thresholds come from config structs
// supplied at construction time.
//
// # What this package must NOT do
//
//   - Import goSession.
//   - Make policy decisions beyond counting; the engine decides consequences.
package limiters
