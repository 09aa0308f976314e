// Package auth provides JWT access token issuance and validation for the
// Hearth API.
//
// Tokens are signed with HS256 using the shared secret from configuration
// (HEARTH_JWT_SECRET). Validation is stateless: signature and expiry checks
// only, no database lookup. The token subject carries the user ID that is
// attached to event contexts for attribution.
package auth
