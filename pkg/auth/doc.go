// Package auth resolves the caller of an HTTP request to an identity with a
// permission tier.
//
// Authenticators vote in a chain: Yes (identity found), No (credentials
// present but invalid) or Abstain (not my kind of credentials). The first
// Yes or No wins; when everyone abstains the chain's default decides. The
// middleware stores the identity and its tenant in the request context,
// where transports read the caller tier. The tier is never taken from a
// request body.
package auth
