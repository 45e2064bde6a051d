package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wastetrack/wastetrack/internal/auth"
	"github.com/wastetrack/wastetrack/internal/config"
	"github.com/wastetrack/wastetrack/internal/logger"
	"github.com/wastetrack/wastetrack/internal/model"
	"github.com/wastetrack/wastetrack/internal/repository/memory"
)

const testPassword = "Corr3ct-Horse"

var testMeta = RequestMeta{IP: "203.0.113.7", UserAgent: "test-agent/1.0"}

type testEnv struct {
	accounts *memory.AccountStore
	tokens   *memory.TokenStore
	audits   *memory.AuditStore
	states   *memory.StateStore
	hasher   *auth.PasswordHasher
	jwt      *auth.TokenService
	audit    *AuditRecorder
	verifier *CredentialVerifier
	issuer   *TokenIssuer
	service  *AccountService
	notifier *recordingNotifier
	logs     *syncBuffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	hasher, err := auth.NewPasswordHasher(auth.NewParams(1024, 1, 1))
	require.NoError(t, err)
	jwt, err := auth.NewTokenService(config.TokenConfig{
		AccessSecret:    "access-secret-access-secret-0123456789",
		RefreshSecret:   "refresh-secret-refresh-secret-012345678",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "wastetrack-test",
	})
	require.NoError(t, err)

	logs := &syncBuffer{}
	log := logger.NewWithWriter(logs, "debug", "json")

	env := &testEnv{
		accounts: memory.NewAccountStore(),
		tokens:   memory.NewTokenStore(),
		audits:   memory.NewAuditStore(),
		states:   memory.NewStateStore(),
		hasher:   hasher,
		jwt:      jwt,
		notifier: &recordingNotifier{},
		logs:     logs,
	}
	env.audit = NewAuditRecorder(env.audits, config.AuditConfig{QueueSize: 64, Workers: 1}, log, nil)
	env.verifier = NewCredentialVerifier(env.accounts, hasher, env.audit, log, nil)
	env.issuer = NewTokenIssuer(env.tokens, env.accounts, jwt, env.audit, log, nil)
	env.service = NewAccountService(env.accounts, hasher, env.issuer, env.notifier, config.PasswordConfig{MinLength: 8}, log)

	t.Cleanup(func() { _ = env.audit.Close(context.Background()) })
	return env
}

// seedAccount stores a local account with testPassword
func (e *testEnv) seedAccount(t *testing.T, username string, role model.Role) *model.Account {
	t.Helper()
	hash, err := e.hasher.Hash(testPassword)
	require.NoError(t, err)

	now := time.Now().UTC()
	acct := &model.Account{
		ID:           "id-" + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		AuthMethods:  model.AuthMethods{Local: true},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.accounts.Create(context.Background(), acct))
	return acct
}

// records flushes the audit queue and returns what was persisted
func (e *testEnv) records() []model.AuditRecord {
	e.audit.Flush()
	return e.audits.All()
}

func (e *testEnv) lastRecord(t *testing.T) model.AuditRecord {
	t.Helper()
	recs := e.records()
	require.NotEmpty(t, recs)
	return recs[len(recs)-1]
}

type recordingNotifier struct {
	mu      sync.Mutex
	changed []string
	welcome []string
}

func (n *recordingNotifier) CredentialsChanged(to, _ string, _ bool, _ time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, to)
}

func (n *recordingNotifier) changedTo() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.changed...)
}

func (n *recordingNotifier) Welcome(to, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcome = append(n.welcome, to)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
