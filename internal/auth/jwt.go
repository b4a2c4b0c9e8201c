package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/config"
	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

type JWTValidator struct {
	alg    string
	secret []byte
	pub    *rsa.PublicKey
}

func NewJWTValidatorHS256(secret string) (*JWTValidator, error) {
	if secret == "" {
		return nil, errors.New("hs256 secret empty")
	}
	return &JWTValidator{alg: jwt.SigningMethodHS256.Alg(), secret: []byte(secret)}, nil
}

// NewJWTValidatorRS256 loads an RSA public key from filesystem
func NewJWTValidatorRS256(pubPath string) (*JWTValidator, error) {
	b, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &JWTValidator{alg: jwt.SigningMethodRS256.Alg(), pub: pub}, nil
}

func NewJWTValidator(cfg config.JWTConf) (*JWTValidator, error) {
	if strings.ToUpper(cfg.Alg) == "RS256" {
		return NewJWTValidatorRS256(cfg.PublicKeyPath)
	}
	return NewJWTValidatorHS256(cfg.HSSecret)
}

// Validate returns the user id carried by the token. The id is read from
// sub, then user_id, then id.
func (j *JWTValidator) Validate(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", errors.New("empty token")
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if j.pub != nil {
			return j.pub, nil
		}
		return j.secret, nil
	}, jwt.WithValidMethods([]string{j.alg}))
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	for _, k := range []string{"sub", "user_id", "id"} {
		if v, ok := claims[k].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", errors.New("user claim missing")
}

// SignHS256 issues a token for user. Used by tests and local tooling; real
// sessions are issued by the auth service.
func SignHS256(secret, user string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": user,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// UserLookup is the part of the user directory the resolver needs.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// Resolver turns a bearer credential into a known user id. HTTP requests
// and socket handshakes both go through it.
type Resolver struct {
	validator *JWTValidator
	users     UserLookup
}

func NewResolver(v *JWTValidator, users UserLookup) *Resolver {
	return &Resolver{validator: v, users: users}
}

// Resolve fails with domain.ErrUnauthenticated for a bad token or a user
// that no longer exists; store failures pass through unchanged.
func (r *Resolver) Resolve(ctx context.Context, token string) (string, error) {
	uid, err := r.validator.Validate(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if _, err := r.users.GetUser(ctx, uid); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: user not found", domain.ErrUnauthenticated)
		}
		return "", err
	}
	return uid, nil
}

// ParseBearerToken extracts the token from an Authorization header value.
func ParseBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header empty")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
