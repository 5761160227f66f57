// Package jwt signs and verifies HS256 access tokens carrying the tenant a
// user belongs to.
//
// Tokens are issued by the identity service; this package verifies them and
// can sign tokens for tests and local tooling.
//
//	svc, err := jwt.New(secret, jwt.WithIssuer("weekly"))
//	token, err := svc.Generate(jwt.Claims{UserID: "u1", Role: "owner", Tenant: "acme"}, time.Hour)
//	claims, err := svc.Parse(token)
//
// Parse accepts only HMAC-SHA256 signatures and checks exp and nbf. Expired
// tokens yield ErrExpiredToken; every other failure yields ErrInvalidToken.
package jwt
