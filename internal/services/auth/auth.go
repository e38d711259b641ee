package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"authgate/internal/domain/models"
	"authgate/internal/lib/jwt"
	"authgate/internal/lib/logger/sl"
	"authgate/internal/storage"
)

type Auth struct {
	logger          *slog.Logger
	userSaver       UserSaver
	userProvider    UserProvider
	tokenProvider   RefreshTokenProvider
	secret          string
	tokenTTL        time.Duration
	refreshTokenTTL time.Duration
	refreshPepper   string
}

type UserSaver interface {
	SaveUser(
		ctx context.Context,
		username string,
		passHash []byte,
	) (uid int64, err error)
}

type UserProvider interface {
	User(
		ctx context.Context,
		username string,
	) (user *models.User, err error)
	UserByID(
		ctx context.Context,
		userID int64,
	) (user *models.User, err error)
}

type RefreshTokenProvider interface {
	SaveRefreshToken(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldHash, newHash string, userID int64, newExpiresAt time.Time) error
}

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	ErrRefreshTokenRevoked = errors.New("refresh token revoked")
)

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokenProvider RefreshTokenProvider,
	secret string,
	tokenTTL time.Duration,
	refreshTokenTTL time.Duration,
	refreshPepper string,
) *Auth {
	return &Auth{
		userSaver:       userSaver,
		userProvider:    userProvider,
		logger:          logger,
		tokenProvider:   tokenProvider,
		secret:          secret,
		tokenTTL:        tokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		refreshPepper:   refreshPepper,
	}
}

func (a *Auth) Register(
	ctx context.Context,
	username string,
	password string,
) (userID int64, err error) {
	const op = "auth.Register"
	log := a.logger.With(
		slog.String("op", op),
		slog.String("username", username),
	)
	log.Info("register request")

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	userID, err = a.userSaver.SaveUser(ctx, username, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			log.Warn("user already exists", sl.Err(err))
			return 0, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("userID", userID))

	return userID, nil
}

// Login authenticates user and returns access token and refresh token.
func (a *Auth) Login(
	ctx context.Context,
	username string,
	password string,
) (models.TokenPair, error) {
	const op = "auth.Login"
	log := a.logger.With(slog.String("op", op))
	log.Info("login request", slog.String("username", username))

	user, err := a.userProvider.User(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		log.Error("failed to get user", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Warn("invalid password", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	accessToken, err := jwt.GenerateToken(user, a.secret, a.tokenTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := a.generateAndSaveRefreshToken(ctx, user.ID)
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.Int64("userID", user.ID))

	return models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh exchanges a valid refresh token for a new access token and refresh token (rotation).
func (a *Auth) Refresh(
	ctx context.Context,
	refreshToken string,
) (models.TokenPair, error) {
	const op = "auth.Refresh"
	log := a.logger.With(slog.String("op", op))
	log.Info("refresh request")

	tokenHash := a.hashRefreshToken(refreshToken)

	tokenDoc, err := a.tokenProvider.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			log.Warn("refresh token not found")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to get refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if tokenDoc.RevokedAt != nil {
		log.Warn("refresh token already revoked")
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrRefreshTokenRevoked)
	}

	if time.Now().After(tokenDoc.ExpiresAt) {
		log.Warn("refresh token expired")
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrRefreshTokenExpired)
	}

	user, err := a.userProvider.UserByID(ctx, tokenDoc.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("refresh token owner is gone", sl.Err(err))
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to get user", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	newAccessToken, err := jwt.GenerateToken(user, a.secret, a.tokenTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	newRefreshToken, err := generateRefreshTokenRaw()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	newHash := a.hashRefreshToken(newRefreshToken)
	newExpiresAt := time.Now().Add(a.refreshTokenTTL)

	err = a.tokenProvider.RotateRefreshToken(ctx, tokenHash, newHash, tokenDoc.UserID, newExpiresAt)
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenNotFound) {
			log.Warn("refresh token rotated concurrently")
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrRefreshTokenRevoked)
		}
		log.Error("failed to rotate refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens refreshed", slog.Int64("userID", user.ID))

	return models.TokenPair{AccessToken: newAccessToken, RefreshToken: newRefreshToken}, nil
}

// User returns the account behind an access token's uid claim.
func (a *Auth) User(ctx context.Context, userID int64) (*models.User, error) {
	const op = "auth.User"

	user, err := a.userProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// generateAndSaveRefreshToken creates a new refresh token, stores its hash, and returns the raw token.
func (a *Auth) generateAndSaveRefreshToken(ctx context.Context, userID int64) (string, error) {
	rawToken, err := generateRefreshTokenRaw()
	if err != nil {
		return "", err
	}

	tokenHash := a.hashRefreshToken(rawToken)
	expiresAt := time.Now().Add(a.refreshTokenTTL)

	if err := a.tokenProvider.SaveRefreshToken(ctx, tokenHash, userID, expiresAt); err != nil {
		return "", err
	}

	return rawToken, nil
}

// hashRefreshToken computes SHA-256 hash of the token with pepper.
func (a *Auth) hashRefreshToken(token string) string {
	h := sha256.New()
	h.Write([]byte(token + a.refreshPepper))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// generateRefreshTokenRaw generates a cryptographically secure random token.
func generateRefreshTokenRaw() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
