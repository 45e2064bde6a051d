package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastetrack/wastetrack/internal/apperr"
	"github.com/wastetrack/wastetrack/internal/model"
)

func TestIssueStoresHashedRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "ana", model.RoleCitizen)

	pair, err := env.issuer.Issue(context.Background(), acct, testMeta)
	require.NoError(t, err)
	assert.EqualValues(t, 900, pair.ExpiresIn)

	claims, err := env.jwt.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)

	stored, err := env.tokens.GetByID(context.Background(), claims.ID)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, stored.TokenHash)
	assert.Equal(t, "203.0.113.7", stored.IssuingIP)
	assert.Equal(t, "test-agent/1.0", stored.IssuingUserAgent)
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "ana", model.RoleCitizen)
	ctx := context.Background()

	first, err := env.issuer.Issue(ctx, acct, testMeta)
	require.NoError(t, err)

	second, err := env.issuer.Refresh(ctx, first.RefreshToken, testMeta)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = env.issuer.Refresh(ctx, first.RefreshToken, testMeta)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	// the rotated token still works
	_, err = env.issuer.Refresh(ctx, second.RefreshToken, testMeta)
	assert.NoError(t, err)
}

func TestConcurrentRefreshHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "ana", model.RoleCitizen)
	ctx := context.Background()

	pair, err := env.issuer.Issue(ctx, acct, testMeta)
	require.NoError(t, err)

	const n = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := env.issuer.Refresh(ctx, pair.RefreshToken, testMeta); err == nil {
				successes.Add(1)
			} else {
				assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
}

func TestRefreshValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.issuer.Refresh(ctx, "", testMeta)
	assert.ErrorIs(t, err, apperr.ErrRefreshTokenRequired)

	_, err = env.issuer.Refresh(ctx, "garbage", testMeta)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	// an access token is not a refresh token
	acct := env.seedAccount(t, "ana", model.RoleCitizen)
	pair, err := env.issuer.Issue(ctx, acct, testMeta)
	require.NoError(t, err)
	_, err = env.issuer.Refresh(ctx, pair.AccessToken, testMeta)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	rec := env.lastRecord(t)
	assert.Equal(t, model.AuditActionAccessDenied, rec.Action)
	assert.Equal(t, "refresh", rec.Metadata["endpoint"])
}

func TestRefreshExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "ana", model.RoleCitizen)
	ctx := context.Background()

	env.issuer.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	pair, err := env.issuer.Issue(ctx, acct, testMeta)
	require.NoError(t, err)
	env.issuer.now = time.Now

	_, err = env.issuer.Refresh(ctx, pair.RefreshToken, testMeta)
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)
}

func TestRefreshBlockedAccount(t *testing.T) {
	env := newTestEnv(t)
	acct := env.seedAccount(t, "ana", model.RoleCitizen)
	ctx := context.Background()

	pair, err := env.issuer.Issue(ctx, acct, testMeta)
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, env.accounts.SetActive(ctx, acct.ID, false, &at))

	_, err = env.issuer.Refresh(ctx, pair.RefreshToken, testMeta)
	require.ErrorIs(t, err, apperr.ErrAccountBlocked)

	rec := env.lastRecord(t)
	assert.Equal(t, model.AuditActionTokenRefresh, rec.Action)
	assert.Equal(t, model.AuditStatusFailed, rec.Status)
	assert.Equal(t, "account_blocked", rec.Metadata["reason"])
}

func TestRevoke(t *testing.T) {
	env := newTestEnv(t)
	ana := env.seedAccount(t, "ana", model.RoleCitizen)
	bob := env.seedAccount(t, "bob", model.RoleCitizen)
	ctx := context.Background()

	pair, err := env.issuer.Issue(ctx, ana, testMeta)
	require.NoError(t, err)

	// someone else's token
	assert.ErrorIs(t, env.issuer.Revoke(ctx, bob.ID, pair.RefreshToken), apperr.ErrTokenInvalid)

	require.NoError(t, env.issuer.Revoke(ctx, ana.ID, pair.RefreshToken))
	_, err = env.issuer.Refresh(ctx, pair.RefreshToken, testMeta)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	// revoking twice is harmless
	assert.NoError(t, env.issuer.Revoke(ctx, ana.ID, pair.RefreshToken))
}

func TestRevokeAll(t *testing.T) {
	env := newTestEnv(t)
	ana := env.seedAccount(t, "ana", model.RoleCitizen)
	ctx := context.Background()

	var pairs []*model.TokenPair
	for i := 0; i < 3; i++ {
		p, err := env.issuer.Issue(ctx, ana, testMeta)
		require.NoError(t, err)
		pairs = append(pairs, p)
	}

	n, err := env.issuer.RevokeAll(ctx, ana.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	for _, p := range pairs {
		_, err := env.issuer.Refresh(ctx, p.RefreshToken, testMeta)
		assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
	}
}
