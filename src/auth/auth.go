package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidAlgorithm = errors.New("invalid signing algorithm")
	ErrEmptySecret      = errors.New("auth secret cannot be empty")
)

// Claims are the token claims the hub cares about. The user id rides in the
// registered "sub" claim.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Identity is a verified principal.
type Identity struct {
	UserID    string
	Roles     []string
	ExpiresAt time.Time
}

// Config holds the verification secret and algorithm.
type Config struct {
	Secret    string
	Algorithm string // HS256, HS384 or HS512
}

// Authenticator verifies HMAC-signed bearer tokens.
type Authenticator struct {
	secret []byte
	method jwt.SigningMethod
}

// New creates an Authenticator. Only HMAC algorithms are accepted.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, ErrEmptySecret
	}
	var method jwt.SigningMethod
	switch cfg.Algorithm {
	case "", "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, ErrInvalidAlgorithm
	}
	return &Authenticator{secret: []byte(cfg.Secret), method: method}, nil
}

// Authenticate verifies a token and resolves it to an Identity.
func (a *Authenticator) Authenticate(token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidAlgorithm
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{UserID: claims.Subject, Roles: claims.Roles}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Sign issues a token for the given principal. Used by tests and by
// operator tooling; the hub itself only verifies.
func (a *Authenticator) Sign(userID string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(a.method, claims).SignedString(a.secret)
}
