package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/fathima-sithara/messaging-service/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHS256RoundTrip(t *testing.T) {
	v, err := NewJWTValidatorHS256("s3cret")
	require.NoError(t, err)

	tok, err := SignHS256("s3cret", "alice", time.Minute)
	require.NoError(t, err)
	uid, err := v.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)

	bad, err := SignHS256("other", "alice", time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(bad)
	assert.Error(t, err)

	expired, err := SignHS256("s3cret", "alice", -time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(expired)
	assert.Error(t, err)

	_, err = v.Validate("")
	assert.Error(t, err)
}

func TestIDClaimFallback(t *testing.T) {
	v, err := NewJWTValidatorHS256("s3cret")
	require.NoError(t, err)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "bob"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	uid, err := v.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "bob", uid)

	tok, err = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "Employer"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.Validate(tok)
	assert.Error(t, err)
}

func TestRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pub.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	v, err := NewJWTValidatorRS256(path)
	require.NoError(t, err)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"user_id": "carol"}).SignedString(key)
	require.NoError(t, err)
	uid, err := v.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "carol", uid)

	// an HS256 token must not pass an RS256 validator
	hs, err := SignHS256("whatever", "carol", time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(hs)
	assert.Error(t, err)
}

func TestResolver(t *testing.T) {
	store := repository.NewMemoryStore()
	store.AddUser(domain.User{ID: "alice"})
	v, err := NewJWTValidatorHS256("s3cret")
	require.NoError(t, err)
	r := NewResolver(v, store)
	ctx := context.Background()

	tok, _ := SignHS256("s3cret", "alice", time.Minute)
	uid, err := r.Resolve(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)

	ghost, _ := SignHS256("s3cret", "ghost", time.Minute)
	_, err = r.Resolve(ctx, ghost)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = r.Resolve(ctx, "garbage")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestParseBearerToken(t *testing.T) {
	tok, err := ParseBearerToken("Bearer abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	for _, h := range []string{"", "abc", "Basic abc", "Bearer "} {
		_, err := ParseBearerToken(h)
		assert.Error(t, err, h)
	}
}
