package token

import (
	"context"
	"testing"
	"time"

	"storeapi/internal/domain"
	"storeapi/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, accessTTL time.Duration) (*Service, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	t.Cleanup(mem.Close)
	svc := New(mem, "test-access-secret", "test-refresh-secret", "storeapi", accessTTL, 24*time.Hour)
	return svc, mem
}

func testUser() *domain.User {
	return &domain.User{ID: 42, Email: "user@example.com", Role: domain.RoleUser, IsActive: true}
}

var testDevice = DeviceInfo{UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0", IP: "10.0.0.1"}

func TestIssuePairAndVerifyAccess(t *testing.T) {
	svc, _ := newTestService(t, 15*time.Minute)

	pair, err := svc.IssuePair(context.Background(), testUser(), testDevice)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := svc.VerifyAccess(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, testDevice.Fingerprint(), claims.Fingerprint)
}

func TestVerifyAccess_RefreshTokenRejected(t *testing.T) {
	svc, _ := newTestService(t, 15*time.Minute)

	pair, err := svc.IssuePair(context.Background(), testUser(), testDevice)
	require.NoError(t, err)

	// a refresh token must never authenticate a request
	_, err = svc.VerifyAccess(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyAccess_Tampered(t *testing.T) {
	svc, _ := newTestService(t, 15*time.Minute)

	pair, err := svc.IssuePair(context.Background(), testUser(), testDevice)
	require.NoError(t, err)

	tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "xx"
	_, err = svc.VerifyAccess(context.Background(), tampered)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerifyAccess_Expired(t *testing.T) {
	svc, _ := newTestService(t, -time.Minute)

	pair, err := svc.IssuePair(context.Background(), testUser(), testDevice)
	require.NoError(t, err)

	_, err = svc.VerifyAccess(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestBlacklist_RejectsUntilNaturalExpiry(t *testing.T) {
	svc, _ := newTestService(t, 200*time.Millisecond)

	pair, err := svc.IssuePair(context.Background(), testUser(), testDevice)
	require.NoError(t, err)

	require.NoError(t, svc.Blacklist(context.Background(), pair.AccessToken))

	_, err = svc.VerifyAccess(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrBlacklisted)

	// once the blacklist entry lapses the token itself has expired, so
	// it never reappears valid
	time.Sleep(250 * time.Millisecond)
	_, err = svc.VerifyAccess(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestBlacklist_ExpiredTokenIsNoop(t *testing.T) {
	svc, mem := newTestService(t, -time.Minute)

	pair, err := svc.IssuePair(context.Background(), testUser(), testDevice)
	require.NoError(t, err)

	require.NoError(t, svc.Blacklist(context.Background(), pair.AccessToken))

	keys, err := mem.Keys(context.Background(), "blacklist:token:*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRotate_SingleUse(t *testing.T) {
	svc, _ := newTestService(t, 15*time.Minute)

	pair, err := svc.IssuePair(context.Background(), testUser(), testDevice)
	require.NoError(t, err)

	newPair, err := svc.Rotate(context.Background(), pair.RefreshToken, testDevice)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)

	// the old refresh token has been superseded
	_, err = svc.Rotate(context.Background(), pair.RefreshToken, testDevice)
	assert.ErrorIs(t, err, ErrRefreshReused)

	// the new one still works
	_, err = svc.Rotate(context.Background(), newPair.RefreshToken, testDevice)
	assert.NoError(t, err)
}

func TestRotate_KeepsFingerprint(t *testing.T) {
	svc, _ := newTestService(t, 15*time.Minute)

	pair, err := svc.IssuePair(context.Background(), testUser(), testDevice)
	require.NoError(t, err)

	otherDevice := DeviceInfo{UserAgent: testDevice.UserAgent, IP: "10.9.9.9"}
	newPair, err := svc.Rotate(context.Background(), pair.RefreshToken, otherDevice)
	require.NoError(t, err)

	claims, err := svc.VerifyAccess(context.Background(), newPair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testDevice.Fingerprint(), claims.Fingerprint)
}

func TestRotate_MissingRecordTrustsSignature(t *testing.T) {
	svc, mem := newTestService(t, 15*time.Minute)

	pair, err := svc.IssuePair(context.Background(), testUser(), testDevice)
	require.NoError(t, err)

	// simulate cache eviction of the session binding
	_, err = mem.Delete(context.Background(),
		"session:user:42:"+testDevice.Fingerprint(),
		"refresh:token:42:"+testDevice.Fingerprint())
	require.NoError(t, err)

	_, err = svc.Rotate(context.Background(), pair.RefreshToken, testDevice)
	assert.NoError(t, err)
}

func TestRotate_GarbageToken(t *testing.T) {
	svc, _ := newTestService(t, 15*time.Minute)

	_, err := svc.Rotate(context.Background(), "not-a-jwt", testDevice)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSessions_ListRevoke(t *testing.T) {
	svc, _ := newTestService(t, 15*time.Minute)
	ctx := context.Background()

	laptop := DeviceInfo{UserAgent: "Mozilla/5.0 (Macintosh) Safari/605", IP: "10.0.0.1"}
	phone := DeviceInfo{UserAgent: "Mozilla/5.0 (iPhone) Safari/605", IP: "10.0.0.2"}

	_, err := svc.IssuePair(ctx, testUser(), laptop)
	require.NoError(t, err)
	_, err = svc.IssuePair(ctx, testUser(), phone)
	require.NoError(t, err)

	sessions, err := svc.ListSessions(ctx, 42)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.True(t, svc.RevokeSession(ctx, 42, laptop.Fingerprint()))
	assert.False(t, svc.RevokeSession(ctx, 42, laptop.Fingerprint()), "second revoke finds nothing")

	sessions, err = svc.ListSessions(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	assert.Equal(t, 1, svc.RevokeAllSessions(ctx, 42))
}

func TestRevokedSessionRefreshIsRejected(t *testing.T) {
	svc, _ := newTestService(t, 15*time.Minute)
	ctx := context.Background()

	pair, err := svc.IssuePair(ctx, testUser(), testDevice)
	require.NoError(t, err)

	// another instance rotates first; the stored reference now belongs
	// to that rotation
	rotated, err := svc.Rotate(ctx, pair.RefreshToken, testDevice)
	require.NoError(t, err)
	require.NotNil(t, rotated)

	_, err = svc.Rotate(ctx, pair.RefreshToken, testDevice)
	assert.ErrorIs(t, err, ErrRefreshReused)
}

func TestDeviceFingerprint(t *testing.T) {
	a := DeviceInfo{UserAgent: "ua-1", IP: "1.1.1.1"}
	b := DeviceInfo{UserAgent: "ua-1", IP: "1.1.1.1"}
	c := DeviceInfo{UserAgent: "ua-1", IP: "2.2.2.2"}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)
}
