package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastetrack/wastetrack/internal/model"
	"github.com/wastetrack/wastetrack/internal/service"
)

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

func TestBearerAcceptsValidToken(t *testing.T) {
	f := newFixture(t)
	acct := f.seed(t, "ana", model.RoleCitizen)

	r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	r.Header.Set("Authorization", "Bearer "+f.accessToken(t, acct, time.Now()))

	rec := serve(f.mw.Bearer(okHandler()), r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, acct.ID, rec.Body.String())
	assert.Empty(t, f.records())
}

func TestBearerRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active := f.seed(t, "ana", model.RoleCitizen)
	blocked := f.seed(t, "bob", model.RoleCitizen)
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, f.accounts.SetActive(ctx, blocked.ID, false, &at))

	changed := f.seed(t, "cid", model.RoleCitizen)
	issued := time.Now().Add(-time.Minute)
	staleToken := f.accessToken(t, changed, issued)
	require.NoError(t, f.accounts.UpdateCredentials(ctx, changed.ID, nil, nil, issued.Add(time.Second)))

	ghost := &model.Account{ID: "ghost", Role: model.RoleCitizen}

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, "TOKEN_MISSING"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "TOKEN_MISSING"},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized, "TOKEN_INVALID"},
		{"expired", "Bearer " + f.accessToken(t, active, time.Now().Add(-time.Hour)), http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"deleted account", "Bearer " + f.accessToken(t, ghost, time.Now()), http.StatusUnauthorized, "ACCOUNT_NOT_FOUND"},
		{"blocked account", "Bearer " + f.accessToken(t, blocked, time.Now()), http.StatusForbidden, "ACCOUNT_BLOCKED"},
		{"issued before credential change", "Bearer " + staleToken, http.StatusUnauthorized, "STALE_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := serve(f.mw.Bearer(okHandler()), r)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	recs := f.records()
	require.Len(t, recs, len(tests))
	for _, r := range recs {
		assert.Equal(t, model.AuditActionAccessDenied, r.Action)
		assert.Equal(t, "/api/auth/me", r.Metadata["path"])
	}
}

func TestBearerBlockedIncludesTimestamp(t *testing.T) {
	f := newFixture(t)
	acct := f.seed(t, "bob", model.RoleCitizen)
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, f.accounts.SetActive(context.Background(), acct.ID, false, &at))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+f.accessToken(t, acct, time.Now()))
	rec := serve(f.mw.Bearer(okHandler()), r)

	assert.Contains(t, rec.Body.String(), "2026-03-04T05:06:07Z")
}

func TestBearerTokenIssuedWithChangeIsAccepted(t *testing.T) {
	f := newFixture(t)
	acct := f.seed(t, "ana", model.RoleCitizen)
	changedAt := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, f.accounts.UpdateCredentials(context.Background(), acct.ID, nil, nil, changedAt))

	// the pair returned by the credential change carries the same instant
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+f.accessToken(t, acct, changedAt))
	rec := serve(f.mw.Bearer(okHandler()), r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerAcceptsTokenFromTheChangeMillisecond(t *testing.T) {
	f := newFixture(t)
	acct := f.seed(t, "ana", model.RoleCitizen)
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := range 1000 {
		changedAt := base.Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, f.accounts.UpdateCredentials(context.Background(), acct.ID, nil, nil, changedAt))

		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+f.accessToken(t, acct, changedAt))
		rec := serve(f.mw.Bearer(okHandler()), r)
		require.Equal(t, http.StatusOK, rec.Code, "offset %dms: %s", i, rec.Body.String())
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+f.accessToken(t, acct, base.Add(998*time.Millisecond)))
	rec := serve(f.mw.Bearer(okHandler()), r)
	assert.Equal(t, "STALE_TOKEN", errorCode(t, rec))
}

func TestBearerStoreFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	acct := f.seed(t, "ana", model.RoleCitizen)
	f.mw.accounts = failingAccounts{f.accounts}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+f.accessToken(t, acct, time.Now()))
	rec := serve(f.mw.Bearer(okHandler()), r)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "database")
}

func TestBasic(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "ana", model.RoleCitizen)

	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	r.SetBasicAuth("ana", testPassword)
	rec := serve(f.mw.Basic(okHandler()), r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "id-ana", rec.Body.String())

	r = httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	r.SetBasicAuth("ana", "Wr0ng-Password")
	rec = serve(f.mw.Basic(okHandler()), r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, rec))

	r = httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	rec = serve(f.mw.Basic(okHandler()), r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_MISSING", errorCode(t, rec))

	actions := []model.AuditAction{}
	for _, rec := range f.records() {
		actions = append(actions, rec.Action)
	}
	assert.Equal(t, []model.AuditAction{
		model.AuditActionLogin,
		model.AuditActionFailedLogin,
		model.AuditActionAccessDenied,
	}, actions)
}

func TestRequireCapability(t *testing.T) {
	f := newFixture(t)
	citizen := f.seed(t, "ana", model.RoleCitizen)
	admin := f.seed(t, "root", model.RoleAdministrator)

	h := f.mw.Bearer(f.mw.RequireCapability(model.CapabilityManageAccounts)(okHandler()))

	r := httptest.NewRequest(http.MethodGet, "/api/admin/accounts", nil)
	r.Header.Set("Authorization", "Bearer "+f.accessToken(t, citizen, time.Now()))
	rec := serve(h, r)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))

	recs := f.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "insufficient_role", recs[0].Metadata["reason"])
	assert.Equal(t, "manage_accounts", recs[0].Metadata["capability"])

	r = httptest.NewRequest(http.MethodGet, "/api/admin/accounts", nil)
	r.Header.Set("Authorization", "Bearer "+f.accessToken(t, admin, time.Now()))
	rec = serve(h, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRedirectUnlessCapable(t *testing.T) {
	f := newFixture(t)
	citizen := f.seed(t, "ana", model.RoleCitizen)
	operator := f.seed(t, "olga", model.RoleOperator)

	h := f.mw.RedirectUnlessCapable(model.CapabilityOperatorConsole)(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/console/operator", nil)
	rec := serve(h, r)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example.com/login", rec.Header().Get("Location"))

	r = httptest.NewRequest(http.MethodGet, "/console/operator", nil)
	r.Header.Set("Authorization", "Bearer "+f.accessToken(t, citizen, time.Now()))
	rec = serve(h, r)
	assert.Equal(t, http.StatusFound, rec.Code)

	r = httptest.NewRequest(http.MethodGet, "/console/operator", nil)
	r.Header.Set("Authorization", "Bearer "+f.accessToken(t, operator, time.Now()))
	rec = serve(h, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, operator.ID, rec.Body.String())
}

// failingAccounts fails every lookup by id
type failingAccounts struct {
	service.AccountStore
}

func (failingAccounts) GetByID(context.Context, string) (*model.Account, error) {
	return nil, errors.New("database is down")
}
