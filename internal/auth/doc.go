// Package auth authenticates operators of the hvac-mesh gateway.
//
// # Tokens
//
// Operators present HS256 JWTs signed with the configured auth.jwt_secret:
//
//	v := auth.NewJWTVerifier(secret)
//	token, err := v.Generate("ops@example.com", []string{auth.RoleOperator}, 24*time.Hour)
//	claims, err := v.Verify(token)
//
// The "sub" claim names the principal and becomes the audit actor; the
// "roles" claim grants operator and admin privileges. Mutating admin
// endpoints require RoleAdmin.
//
// # Middleware
//
// HTTPAuthMiddleware and the gRPC UnaryInterceptor/StreamInterceptor read
// "Authorization: Bearer <token>" and attach an AuthContext retrievable with
// FromContext. gRPC health methods are passed in the skip list so health
// checks work without a token. When no secret is configured the NoAuth variants inject
// Anonymous, which holds every role.
package auth
