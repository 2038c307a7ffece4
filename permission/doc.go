// Package permission models the CRUD permission code carried by a profile.
//
// # Representation
//
// A [Code] is a bitset over Create, Read, Update and Delete plus an ALL
// sentinel on the highest bit. Strings such as "CRU" or "ALL" exist only at
// the wire and storage boundary; [Parse] and [Code.String] convert between
// the two. A check is set containment: "CRU" satisfies "C", "R", "U" and
// "CR", but not "D".
//
// # Architecture boundaries
//
// This package is a pure in-memory value type with no I/O.
//
// # What this package must NOT do
//
//   - Access storage or the network.
//   - Import goSession or any sibling package.
//   - Grant anything for an unparsable code.
package permission
