// Package jwt manages access-token issuance and verification using configured signing keys
// and strict validation semantics suitable for low-latency authentication paths.
//
// Access tokens are stateless: verification checks signature and time claims
// only and never touches storage. Key rotation works through the VerifyKeys
// map, where retired keys keep verifying by kid while the configured KeyID
// signs new tokens.
package jwt
