package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT(Claims{UserID: "google|1", Email: "a@example.com", Name: "A"}, "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "google|1", claims.UserID)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.Equal(t, "A", claims.Name)
	assert.Equal(t, "google|1", claims.Subject)

	_, err = ParseJWT(token, "other")
	assert.Error(t, err)
}

func TestJWTRejectsExpiredAndAnonymous(t *testing.T) {
	expired, err := GenerateJWT(Claims{UserID: "u"}, "k", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "k")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = GenerateJWT(Claims{}, "k", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSubject)

	// A provider token that only carries sub is accepted.
	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "sub-only",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := raw.SignedString([]byte("k"))
	require.NoError(t, err)
	claims, err := ParseJWT(signed, "k")
	require.NoError(t, err)
	assert.Equal(t, "sub-only", claims.UserID)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "x"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseJWT(unsigned, "k")
	assert.Error(t, err)
}

func TestJWTRejectsEmptySecretAndMissingExpiry(t *testing.T) {
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "victim",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := forged.SignedString([]byte(""))
	require.NoError(t, err)
	claims, err := ParseJWT(signed, "")
	assert.ErrorIs(t, err, ErrEmptySecret)
	assert.Nil(t, claims)

	_, err = GenerateJWT(Claims{UserID: "u"}, "", time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u"})
	signed, err = noExp.SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = ParseJWT(signed, "k")
	assert.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)
}

func newCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCache(rdb, 30*time.Second), mr
}

func TestCache_JSON(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	type balance struct {
		Balance string `json:"balance"`
	}
	var got balance
	found, err := c.GetJSON(ctx, WalletKey("u1"), &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetJSON(ctx, WalletKey("u1"), balance{Balance: "75.00"}))
	assert.Equal(t, 30*time.Second, mr.TTL(WalletKey("u1")))

	found, err = c.GetJSON(ctx, WalletKey("u1"), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "75.00", got.Balance)
}

func TestCache_InvalidateUser(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	for _, key := range []string{
		WalletKey("u1"),
		TxHistoryPrefix("u1") + "limit=20",
		TxHistoryPrefix("u1") + "limit=50",
		AdminTxPrefix + "page=1",
		WalletKey("u2"),
		TxHistoryPrefix("u2") + "limit=20",
	} {
		require.NoError(t, c.SetJSON(ctx, key, 1))
	}

	require.NoError(t, c.InvalidateUser(ctx, "u1"))
	assert.False(t, mr.Exists(WalletKey("u1")))
	assert.False(t, mr.Exists(TxHistoryPrefix("u1")+"limit=20"))
	assert.False(t, mr.Exists(TxHistoryPrefix("u1")+"limit=50"))
	assert.False(t, mr.Exists(AdminTxPrefix+"page=1"))
	assert.True(t, mr.Exists(WalletKey("u2")))
	assert.True(t, mr.Exists(TxHistoryPrefix("u2")+"limit=20"))
}

func TestCache_NilIsNoop(t *testing.T) {
	c := NewCache(nil, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "k", 1))
	found, err := c.GetJSON(ctx, "k", new(int))
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.InvalidateUser(ctx, "u1"))
}
