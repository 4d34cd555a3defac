package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is an exported constant or variable used by the session engine.
var ErrMalformedToken = errors.New("malformed access token")

// ErrNoExpiry is an exported constant or variable used by the session engine.
var ErrNoExpiry = errors.New("access token has no exp claim")

// Claims defines a public type used by sessionkit APIs.
//
// Claims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Custom    map[string]any
}

// Parse decodes the claims of an access token without verifying its signature.
//
// Parse may return an error when the token is not a structurally valid JWT.
func Parse(token string) (*Claims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Join(ErrMalformedToken, err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformedToken
	}

	claims := &Claims{Custom: map[string]any{}}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if iss, err := mapClaims.GetIssuer(); err == nil {
		claims.Issuer = iss
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	for key, value := range mapClaims {
		switch key {
		case "sub", "iss", "exp", "iat", "nbf", "aud":
		default:
			claims.Custom[key] = value
		}
	}
	return claims, nil
}

// Expiry returns the exp claim of an access token without verifying it.
//
// Expiry may return an error when the token is malformed or carries no exp claim.
func Expiry(token string) (time.Time, error) {
	claims, err := Parse(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt.IsZero() {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt, nil
}
