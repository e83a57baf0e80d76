// Package identity resolves who is calling: bearer tokens from the identity
// gateway on API requests and signed webhooks from the identity provider.
package identity

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when the token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// VerifierConfig selects the key used to verify gateway tokens. Exactly one
// of HS256Secret and RSAPublicKeyPEM must be set.
type VerifierConfig struct {
	HS256Secret     string
	RSAPublicKeyPEM string
	Issuer          string
}

// Verifier checks bearer tokens and extracts the caller id from the subject.
type Verifier struct {
	methods []string
	key     any
	issuer  string
}

// NewVerifier builds a Verifier from cfg.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.HS256Secret)
	pem := strings.TrimSpace(cfg.RSAPublicKeyPEM)

	switch {
	case secret != "" && pem != "":
		return nil, errors.New("configure either an HS256 secret or an RSA public key, not both")
	case secret != "":
		return &Verifier{methods: []string{"HS256"}, key: []byte(secret), issuer: cfg.Issuer}, nil
	case pem != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("parse RSA public key: %w", err)
		}
		return &Verifier{methods: []string{"RS256", "RS384", "RS512"}, key: key, issuer: cfg.Issuer}, nil
	default:
		return nil, errors.New("no token verification key configured")
	}
}

// Verify validates token and returns the caller id it carries.
func (v *Verifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(v.methods), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// SignHS256 issues a token for subject. It is what the gateway does and is
// used by local tooling and tests.
func SignHS256(secret, subject, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// SignRS256 issues an RSA-signed token for subject.
func SignRS256(key *rsa.PrivateKey, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}
