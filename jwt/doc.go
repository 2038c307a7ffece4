// Package jwt reads the registered claims of bearer tokens that happen to
// be JWTs, without verifying them.
//
// The identity server owns token issuance and verification. The client only
// wants to know whether a token it holds has visibly expired, so it can
// schedule a server round-trip instead of trusting a dead credential.
//
// # What this package must NOT do
//
//   - Treat anything it decodes as authenticated.
//   - Fail for opaque tokens; they simply yield no inspection.
//   - Import goSession.
package jwt
