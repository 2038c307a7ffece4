// Package password derives and checks the local password verifier used for
// offline lock-screen unlock.
//
// # Output format
//
// Verifiers are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports verifiers derived with weaker parameters so
// the caller can re-derive after the next successful unlock.
//
// # Architecture boundaries
//
// This package owns derivation and verification only. Where the verifier is
// persisted and when it is consulted is decided by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve verifiers.
//   - Import any other goSession package.
//   - Log plaintext passwords or verifier material.
package password
