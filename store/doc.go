// Package store implements the durable credential store consumed by the
// session engine.
//
// # Layers
//
//   - [Backend] is the raw get/set/remove contract over a durable medium.
//     Implementations: [MemoryBackend], [FileBackend], [RedisBackend],
//     [SQLiteBackend]. Each write is atomic per key.
//   - [Credentials] is the namespaced, typed facade over a Backend. It owns
//     key naming and record encoding, and turns every read failure (missing
//     key, unreachable medium, corrupt record) into "absent".
//
// # Binary records
//
// Multi-field values (cached profile, unlock failure window) are stored in
// a compact versioned binary format. Decoders reject unknown versions and
// trailing garbage, which the facade reports as absent.
//
// # Architecture boundaries
//
// Pure storage. The package does not interpret profiles, decide TTLs, or
// know what a lock reason means; it stores the bytes it is handed.
//
// # What this package must NOT do
//
//   - Import goSession or any policy package.
//   - Return an error from a read on the facade.
//   - Touch keys outside its namespace.
package store
