// Package middleware exposes net/http adapters that enforce gate
// predicates on incoming requests.
//
// # Guards
//
//   - [Guard] applies any [gate.Predicate].
//   - [RequireAuthenticated], [RequireGuest], [RequireLockScreen] and
//     [RequirePermission] bind the four predicates of a [gate.Gate].
//
// A denied GET or HEAD is answered with a 303 redirect to the decision's
// target. Other methods get 401 or 403 with the target in the Location
// header, so API clients are not bounced through an HTML login page.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into gate calls. It does NOT make
// session decisions itself; every admit/deny comes from a predicate.
//
// # What this package must NOT do
//
//   - Read or write the credential store.
//   - Call the identity server.
//   - Change session state.
package middleware
