package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/config"
	"authgate/internal/gateway"
	"authgate/internal/lib/logger/handlers/slogdiscard"
	"authgate/internal/services/session"
	"authgate/internal/storage"
	"authgate/internal/storage/memory"
)

const passDefaultLen = 10

type suite struct {
	gw      *gateway.Gateway
	session *session.Session
	store   *memory.Storage
	logouts atomic.Int32
}

func newSuite(t *testing.T) *suite {
	t.Helper()

	logger := slogdiscard.NewDiscardLogger()

	issuer, err := New(logger, config.IssuerConfig{
		Host:            "127.0.0.1",
		StoragePath:     filepath.Join(t.TempDir(), "issuer.db"),
		MigrationsPath:  "../../migrations",
		Secret:          "test-secret",
		RefreshPepper:   "test-pepper",
		TokenTTL:        time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = issuer.storage.Close() })

	srv := httptest.NewServer(issuer.HTTPSrv.Handler())
	t.Cleanup(srv.Close)

	s := &suite{store: memory.New()}
	s.gw, err = gateway.New(logger, s.store, gateway.Options{
		BaseURL:      srv.URL + "/api/",
		HTTPClient:   srv.Client(),
		SingleFlight: true,
		OnLogout: func(context.Context, string) {
			s.logouts.Add(1)
		},
	})
	require.NoError(t, err)

	s.session = session.New(logger, s.gw, s.store, "")

	return s
}

func (s *suite) register(t *testing.T) (string, string) {
	t.Helper()

	username := gofakeit.Username()
	password := gofakeit.Password(true, true, true, true, false, passDefaultLen)

	res, err := s.gw.Send(context.Background(), gateway.Request{
		Method: http.MethodPost,
		Path:   "auth/register/",
		Body:   map[string]string{"username": username, "password": password},
		Public: true,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, res.Response.StatusCode)

	return username, password
}

func (s *suite) token(t *testing.T, key storage.Key) string {
	t.Helper()

	v, err := s.store.Get(context.Background(), key)
	if errors.Is(err, storage.ErrCredentialNotFound) {
		return ""
	}
	require.NoError(t, err)
	return v
}

func (s *suite) me(t *testing.T) gateway.Result {
	t.Helper()

	res, err := s.gw.Send(context.Background(), gateway.Request{Method: http.MethodGet, Path: "auth/me/"})
	require.NoError(t, err)
	return res
}

func TestLoginThenAuthenticatedRequest(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()
	username, password := s.register(t)

	creds, err := s.session.Login(ctx, username, password)
	require.NoError(t, err)
	assert.Equal(t, creds.AccessToken, s.token(t, storage.KeyAccessToken))
	assert.Equal(t, creds.RefreshToken, s.token(t, storage.KeyRefreshToken))

	res := s.me(t)
	require.Equal(t, gateway.OutcomeOK, res.Outcome)
	assert.Equal(t, http.StatusOK, res.Response.StatusCode)
	assert.False(t, res.Refreshed)

	var me struct {
		Username string `json:"username"`
	}
	require.NoError(t, res.Response.Decode(&me))
	assert.Equal(t, username, me.Username)
}

func TestLogin_WrongPassword(t *testing.T) {
	s := newSuite(t)
	username, _ := s.register(t)

	_, err := s.session.Login(context.Background(), username, "definitely-wrong")
	require.ErrorIs(t, err, session.ErrInvalidCredentials)

	state, err := s.session.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.StateAnonymous, state)
}

func TestExpiredAccessIsRefreshedAndRotated(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()
	username, password := s.register(t)

	creds, err := s.session.Login(ctx, username, password)
	require.NoError(t, err)

	require.NoError(t, s.store.Set(ctx, storage.KeyAccessToken, "expired.jwt.value"))

	res := s.me(t)
	require.Equal(t, gateway.OutcomeOK, res.Outcome)
	assert.True(t, res.Refreshed)
	assert.Equal(t, http.StatusOK, res.Response.StatusCode)

	newAccess := s.token(t, storage.KeyAccessToken)
	newRefresh := s.token(t, storage.KeyRefreshToken)
	assert.NotEqual(t, "expired.jwt.value", newAccess)
	assert.NotEqual(t, creds.RefreshToken, newRefresh)
	assert.Zero(t, s.logouts.Load())

	res = s.me(t)
	assert.Equal(t, http.StatusOK, res.Response.StatusCode)
	assert.False(t, res.Refreshed)
}

func TestRevokedRefreshLogsOut(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()
	username, password := s.register(t)

	creds, err := s.session.Login(ctx, username, password)
	require.NoError(t, err)

	// One refresh rotates creds.RefreshToken away.
	require.NoError(t, s.store.Set(ctx, storage.KeyAccessToken, "stale"))
	require.Equal(t, gateway.OutcomeOK, s.me(t).Outcome)

	require.NoError(t, s.store.Set(ctx, storage.KeyAccessToken, "stale"))
	require.NoError(t, s.store.Set(ctx, storage.KeyRefreshToken, creds.RefreshToken))

	res := s.me(t)
	require.Equal(t, gateway.OutcomeUnauthenticated, res.Outcome)
	assert.Equal(t, http.StatusUnauthorized, res.Response.StatusCode)
	assert.Empty(t, s.token(t, storage.KeyAccessToken))
	assert.Empty(t, s.token(t, storage.KeyRefreshToken))
	assert.EqualValues(t, 1, s.logouts.Load())

	state, err := s.session.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.StateAnonymous, state)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(slogdiscard.NewDiscardLogger(), config.IssuerConfig{StoragePath: "x.db"})
	require.Error(t, err)
}
