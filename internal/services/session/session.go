package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"authgate/internal/domain/models"
	"authgate/internal/gateway"
	"authgate/internal/lib/logger/sl"
	"authgate/internal/storage"
)

const DefaultLoginPath = "auth/login/"

type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
)

func (s State) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "anonymous"
}

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrMalformedResponse  = errors.New("malformed login response")
	ErrLoginFailed        = errors.New("login failed")
	ErrEmptyUsername      = errors.New("username is required")
	ErrEmptyPassword      = errors.New("password is required")
	ErrNotLoggedIn        = errors.New("no session to refresh")
	ErrRefreshFailed      = errors.New("refresh failed")
)

// Client is the part of the gateway a session drives.
type Client interface {
	Send(ctx context.Context, req gateway.Request) (gateway.Result, error)
	Refresh(ctx context.Context) (string, error)
}

type Session struct {
	logger    *slog.Logger
	client    Client
	store     gateway.CredentialStore
	loginPath string
}

// New returns a new instance of the Session service.
func New(
	logger *slog.Logger,
	client Client,
	store gateway.CredentialStore,
	loginPath string,
) *Session {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}

	return &Session{
		logger:    logger,
		client:    client,
		store:     store,
		loginPath: loginPath,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges username and password for a credential pair and stores it.
func (s *Session) Login(
	ctx context.Context,
	username string,
	password string,
) (models.Credentials, error) {
	const op = "session.Login"
	log := s.logger.With(slog.String("op", op))
	log.Info("login request", slog.String("username", username))

	if username == "" {
		return models.Credentials{}, fmt.Errorf("%s: %w", op, ErrEmptyUsername)
	}
	if password == "" {
		return models.Credentials{}, fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	res, err := s.client.Send(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   s.loginPath,
		Body:   loginRequest{Username: username, Password: password},
		Public: true,
	})
	if err != nil {
		log.Error("login call failed", sl.Err(err))
		return models.Credentials{}, fmt.Errorf("%s: %w", op, err)
	}

	resp := res.Response
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusBadRequest:
		log.Warn("login rejected", slog.Int("status", resp.StatusCode))
		return models.Credentials{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	case !resp.IsSuccess():
		log.Error("unexpected login status", slog.Int("status", resp.StatusCode))
		return models.Credentials{}, fmt.Errorf("%s: %w: status %d", op, ErrLoginFailed, resp.StatusCode)
	}

	var creds models.Credentials
	if err := resp.Decode(&creds); err != nil {
		return models.Credentials{}, fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, err)
	}
	if creds.AccessToken == "" || creds.RefreshToken == "" {
		return models.Credentials{}, fmt.Errorf("%s: %w: missing access or refresh", op, ErrMalformedResponse)
	}

	if err := s.store.Set(ctx, storage.KeyAccessToken, creds.AccessToken); err != nil {
		log.Error("failed to store access token", sl.Err(err))
		return models.Credentials{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.Set(ctx, storage.KeyRefreshToken, creds.RefreshToken); err != nil {
		log.Error("failed to store refresh token", sl.Err(err))
		return models.Credentials{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("logged in", slog.String("username", username))

	return creds, nil
}

// Logout forgets both tokens. Logging out twice is not an error.
func (s *Session) Logout(ctx context.Context) error {
	const op = "session.Logout"

	if err := s.store.Delete(ctx, storage.Keys...); err != nil {
		s.logger.Error("failed to clear credentials", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Refresh mints a new access token from the stored refresh token and
// returns it. The stored pair is left as is when the issuer refuses.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	const op = "session.Refresh"
	log := s.logger.With(slog.String("op", op))

	access, err := s.client.Refresh(ctx)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrNoRefreshToken):
			return "", fmt.Errorf("%s: %w", op, ErrNotLoggedIn)
		case gateway.IsRefreshFailure(err):
			log.Warn("refresh refused", sl.Err(err))
			return "", fmt.Errorf("%s: %w: %v", op, ErrRefreshFailed, err)
		default:
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}

	log.Info("access token refreshed")

	return access, nil
}

// Status reports whether an access token is stored. Its validity is only
// discovered by the next request.
func (s *Session) Status(ctx context.Context) (State, error) {
	const op = "session.Status"

	_, err := s.store.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			return StateAnonymous, nil
		}
		return StateAnonymous, fmt.Errorf("%s: %w", op, err)
	}

	return StateAuthenticated, nil
}
