package utils

import (
	"errors" // Error construction
	"time"   // Time for token expiration

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// Claims issued by the external auth provider
type Claims struct {
	UserID               string `json:"user_id"`           // Opaque provider identity
	Email                string `json:"email"`             // Verified email
	Name                 string `json:"name,omitempty"`    // Display name
	Picture              string `json:"picture,omitempty"` // Avatar URL
	jwt.RegisteredClaims        // Standard JWT claims
}

// Token errors
var (
	ErrMissingSubject = errors.New("token has no user_id")         // No identity in the token
	ErrEmptySecret    = errors.New("JWT secret is not configured") // Would accept tokens signed with an empty key
)

// GenerateJWT signs an HS256 token for the given identity, valid for ttl
func GenerateJWT(claims Claims, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if claims.UserID == "" {
		return "", ErrMissingSubject
	}
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,                    // Mirror user_id in sub
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)), // Token expiry
		IssuedAt:  jwt.NewNumericDate(now),          // Issued at current time
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims) // Create token with claims
	return token.SignedString([]byte(secret))                  // Sign the token with the secret
}

// ParseJWT parses and validates a JWT token string. Tokens must carry an exp claim
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	if secret == "" {
		return nil, ErrEmptySecret // Never verify against an empty key
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil // Return the secret key for validation
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), // Reject alg switching
		jwt.WithExpirationRequired(),                                 // Reject tokens without exp
	)
	// Check for parsing errors
	if err != nil {
		return nil, err // Return error if parsing fails
	}
	// Validate token and extract claims
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid // Return error if token is invalid
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject // Fall back to the standard subject
	}
	if claims.UserID == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
