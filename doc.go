// Package goSession is a client-side authentication session engine. It keeps
// a user signed in across restarts, backgrounding and network loss, and
// re-locks the session after a bounded absence or a long idle period.
//
// An [Engine] is built once with [Builder.Build] and owns the only copy of
// the in-memory session state. Consumers read it through [Engine.Snapshot],
// the accessor methods, or [Engine.Subscribe]; they change it only through
// Engine operations. Engine methods are safe to call from multiple
// goroutines.
//
// # States
//
//	Anonymous --Login--> Authenticating --ok--> Authenticated
//	Authenticated --Logout(manual)--> Anonymous
//	Authenticated --Logout(!manual) | long idle | absence--> Locked
//	Locked --UnlockLocal | server fallback--> Authenticated
//
// # Architecture boundaries
//
// goSession is the public surface. Persistence goes through the store
// package, idle detection through activity, the identity server through an
// [IdentityClient] (see the identity package for the HTTP implementation).
// Startup and resume decisions are pure functions in internal/flows.
//
// # What this package must NOT do
//
//   - Assume a DOM, a UI toolkit or a router; hosts feed [HostSignal] values.
//   - Treat a storage failure as fatal; every read failure is a cache miss.
//   - Apply a background completion to a session other than the one that
//     started it.
//   - Import any sub-package that re-imports goSession.
package goSession
