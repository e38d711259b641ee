package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authgate/internal/gateway"
	"authgate/internal/lib/logger/handlers/slogdiscard"
	"authgate/internal/storage"
	"authgate/internal/storage/memory"
)

func newSession(t *testing.T, handler http.HandlerFunc) (*Session, *memory.Storage) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := memory.New()
	gw, err := gateway.New(slogdiscard.NewDiscardLogger(), store, gateway.Options{
		BaseURL:    server.URL + "/api/",
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)

	return New(slogdiscard.NewDiscardLogger(), gw, store, ""), store
}

func TestLogin_StoresCredentialPair(t *testing.T) {
	var got loginRequest
	var authHeader string

	s, store := newSession(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login/", r.URL.Path)
		authHeader = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access":"A1","refresh":"R1","user":{"username":"alex"}}`)
	})

	// a stale session must not leak into the login call
	require.NoError(t, store.Set(context.Background(), storage.KeyAccessToken, "stale"))

	creds, err := s.Login(context.Background(), "alex", "pw")
	require.NoError(t, err)

	assert.Equal(t, loginRequest{Username: "alex", Password: "pw"}, got)
	assert.Empty(t, authHeader)
	assert.Equal(t, "A1", creds.AccessToken)
	assert.Equal(t, "R1", creds.RefreshToken)

	access, err := store.Get(context.Background(), storage.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "A1", access)

	refresh, err := store.Get(context.Background(), storage.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "R1", refresh)

	state, err := s.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, state)
}

func TestLogin_FailCases(t *testing.T) {
	tests := []struct {
		name        string
		username    string
		password    string
		status      int
		body        string
		expectedErr error
	}{
		{
			name:        "Login with Empty Username",
			username:    "",
			password:    randomPassword(),
			expectedErr: ErrEmptyUsername,
		},
		{
			name:        "Login with Empty Password",
			username:    gofakeit.Username(),
			password:    "",
			expectedErr: ErrEmptyPassword,
		},
		{
			name:        "Login with Wrong Password",
			username:    gofakeit.Username(),
			password:    randomPassword(),
			status:      http.StatusUnauthorized,
			body:        `{"error":"Invalid username or password"}`,
			expectedErr: ErrInvalidCredentials,
		},
		{
			name:        "Login with Invalid Payload",
			username:    gofakeit.Username(),
			password:    randomPassword(),
			status:      http.StatusBadRequest,
			body:        `{"username":["This field is required."]}`,
			expectedErr: ErrInvalidCredentials,
		},
		{
			name:        "Login Server Error",
			username:    gofakeit.Username(),
			password:    randomPassword(),
			status:      http.StatusInternalServerError,
			body:        `boom`,
			expectedErr: ErrLoginFailed,
		},
		{
			name:        "Login without Refresh",
			username:    gofakeit.Username(),
			password:    randomPassword(),
			status:      http.StatusOK,
			body:        `{"access":"A1"}`,
			expectedErr: ErrMalformedResponse,
		},
		{
			name:        "Login with Garbage Body",
			username:    gofakeit.Username(),
			password:    randomPassword(),
			status:      http.StatusOK,
			body:        `<html>`,
			expectedErr: ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store := newSession(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := s.Login(context.Background(), tt.username, tt.password)
			require.ErrorIs(t, err, tt.expectedErr)

			_, err = store.Get(context.Background(), storage.KeyAccessToken)
			assert.ErrorIs(t, err, storage.ErrCredentialNotFound)
			_, err = store.Get(context.Background(), storage.KeyRefreshToken)
			assert.ErrorIs(t, err, storage.ErrCredentialNotFound)
		})
	}
}

func TestLogin_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	store := memory.New()
	gw, err := gateway.New(slogdiscard.NewDiscardLogger(), store, gateway.Options{BaseURL: server.URL + "/api/"})
	require.NoError(t, err)

	_, err = New(slogdiscard.NewDiscardLogger(), gw, store, "").Login(context.Background(), "alex", "pw")
	require.Error(t, err)
	assert.True(t, gateway.IsTransportError(err))
}

func TestLogout_Idempotent(t *testing.T) {
	s, store := newSession(t, func(w http.ResponseWriter, r *http.Request) {})

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, storage.KeyAccessToken, "A1"))
	require.NoError(t, store.Set(ctx, storage.KeyRefreshToken, "R1"))

	require.NoError(t, s.Logout(ctx))
	require.NoError(t, s.Logout(ctx))

	state, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateAnonymous, state)

	_, err = store.Get(ctx, storage.KeyRefreshToken)
	assert.ErrorIs(t, err, storage.ErrCredentialNotFound)
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name        string
		refresh     string
		status      int
		body        string
		wantAccess  string
		wantStored  string
		expectedErr error
	}{
		{
			name:       "issues new access token",
			refresh:    "R1",
			status:     http.StatusOK,
			body:       `{"access":"A2"}`,
			wantAccess: "A2",
			wantStored: "A2",
		},
		{
			name:        "nothing to refresh",
			expectedErr: ErrNotLoggedIn,
		},
		{
			name:        "issuer refuses",
			refresh:     "R1",
			status:      http.StatusUnauthorized,
			body:        `{"detail":"token not valid"}`,
			wantStored:  "A1",
			expectedErr: ErrRefreshFailed,
		},
		{
			name:        "no access in body",
			refresh:     "R1",
			status:      http.StatusOK,
			body:        `{}`,
			wantStored:  "A1",
			expectedErr: ErrRefreshFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			s, store := newSession(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				assert.Equal(t, "/api/auth/token/refresh/", r.URL.Path)

				var req struct {
					Refresh string `json:"refresh"`
				}
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, tt.refresh, req.Refresh)

				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			ctx := context.Background()
			if tt.refresh != "" {
				require.NoError(t, store.Set(ctx, storage.KeyAccessToken, "A1"))
				require.NoError(t, store.Set(ctx, storage.KeyRefreshToken, tt.refresh))
			}

			access, err := s.Refresh(ctx)
			if tt.expectedErr != nil {
				require.ErrorIs(t, err, tt.expectedErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantAccess, access)

			if tt.refresh == "" {
				assert.Zero(t, calls.Load())
				return
			}

			stored, err := store.Get(ctx, storage.KeyAccessToken)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStored, stored)

			refresh, err := store.Get(ctx, storage.KeyRefreshToken)
			require.NoError(t, err)
			assert.Equal(t, tt.refresh, refresh)
		})
	}
}

func randomPassword() string {
	return gofakeit.Password(true, true, true, true, false, 10)
}
