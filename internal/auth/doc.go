// Package auth provides authentication and authorisation for fleet-core.
//
// It implements a 3-tier role model (device → viewer → admin) with:
//   - JWT access tokens (HS256, signature-only validation)
//   - Long-lived device tokens provisioned at enrolment
//   - Static role-permission mapping (compile-time, no database lookup)
//
// Device tokens carry the device ID in a dedicated claim. The API
// middleware additionally scopes device tokens to their own device: a
// device may post heartbeats and hold a WebSocket connection only for
// the ID baked into its token.
package auth
