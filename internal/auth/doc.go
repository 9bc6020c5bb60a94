// Package auth issues and validates bearer tokens for the bridge's control API.
//
// Tokens are HS256 JWTs signed with security.jwt.secret. Each token names a
// subject and a role:
//
//   - viewer: read status and transition history
//   - operator: everything a viewer can do, plus submit mode requests
//
// Tokens are validated by signature and expiry only; there is no user store.
// Operators mint tokens with `venusbridge -issue-token <subject>`.
package auth
