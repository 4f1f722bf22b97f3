package utils

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() { BcryptCost = bcrypt.MinCost }

// bcrypt: right password passes, wrong one fails.
func TestHashAndCheckPassword(t *testing.T) {
	hashed, err := HashPassword("p@ssword")
	if err != nil {
		t.Fatalf("hash err: %v", err)
	}
	if !CheckPasswordHash("p@ssword", hashed) {
		t.Fatalf("should match")
	}
	if CheckPasswordHash("hahaha", hashed) {
		t.Fatalf("should not match")
	}
}

func TestJWTGenerateAndVerify(t *testing.T) {
	token, err := GenerateToken(87, "organizer")
	require.NoError(t, err)

	uid, role, err := VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(87), uid)
	assert.Equal(t, "organizer", role)
}

func TestVerifyToken_Garbage(t *testing.T) {
	_, _, err := VerifyToken("this-is-not-a-jwt")
	assert.Error(t, err)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken(1, "admin")
	require.NoError(t, err)

	ConfigureTokens("another-secret", 0)
	t.Cleanup(func() { ConfigureTokens("supersecret", 24*time.Hour) })

	_, _, err = VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_Expired(t *testing.T) {
	ConfigureTokens("", time.Nanosecond)
	t.Cleanup(func() { ConfigureTokens("", 24*time.Hour) })

	token, err := GenerateToken(1, "participant")
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, _, err = VerifyToken(token)
	assert.Error(t, err)
}

func TestNewTicketID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewTicketID()
		assert.True(t, strings.HasPrefix(id, TicketPrefix))
		assert.Len(t, id, len(TicketPrefix)+12)
		assert.Equal(t, strings.ToUpper(id), id)
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}

func TestGeneratePassword(t *testing.T) {
	a, err := GeneratePassword(12)
	require.NoError(t, err)
	b, err := GeneratePassword(12)
	require.NoError(t, err)
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
}

func TestWriteCSV_Quoting(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []string{"ticketid", "note"}, [][]string{
		{"FEL-1", `said "hi", left`},
		{"FEL-2", "line\nbreak"},
		{"FEL-3", "plain"},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"ticketid,note\nFEL-1,\"said \"\"hi\"\", left\"\nFEL-2,\"line\nbreak\"\nFEL-3,plain\n",
		buf.String())
}

func TestTicketQR(t *testing.T) {
	png, err := TicketQR("FEL-ABC", 128, nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	failing := func(string, qrcode.RecoveryLevel, int) ([]byte, error) {
		return nil, errors.New("boom")
	}
	_, err = TicketQR("FEL-ABC", 0, failing)
	assert.Error(t, err)
}

func TestCacheInvalidator_PurgeEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	require.NoError(t, rdb.Set(ctx, CacheEventsList+"abc", "x", 0).Err())
	require.NoError(t, rdb.Set(ctx, CacheTrending+"abc", "x", 0).Err())
	require.NoError(t, rdb.Set(ctx, CacheEventItem+"e1:abc", "x", 0).Err())
	require.NoError(t, rdb.Set(ctx, CacheEventItem+"e2:abc", "x", 0).Err())
	require.NoError(t, rdb.Set(ctx, CacheOrganizers+"abc", "x", 0).Err())

	NewCacheInvalidator(rdb).PurgeEvent(ctx, "e1")

	assert.False(t, mr.Exists(CacheEventsList+"abc"))
	assert.False(t, mr.Exists(CacheTrending+"abc"))
	assert.False(t, mr.Exists(CacheEventItem+"e1:abc"))
	assert.True(t, mr.Exists(CacheEventItem+"e2:abc"))
	assert.True(t, mr.Exists(CacheOrganizers+"abc"))
}

func TestCacheInvalidator_NilSafe(t *testing.T) {
	var ci *CacheInvalidator
	ci.PurgeEvent(context.Background(), "e1")
	NewCacheInvalidator(nil).PurgeOrganizers(context.Background())
}
