package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"authgate/internal/domain/models"
	"authgate/internal/lib/jwt"
	"authgate/internal/lib/logger/sl"
	"authgate/internal/services/auth"
)

const (
	LoginPath    = "/api/auth/login/"
	RefreshPath  = "/api/auth/token/refresh/"
	RegisterPath = "/api/auth/register/"
	MePath       = "/api/auth/me/"

	maxBodyBytes = 1 << 20
)

type Auth interface {
	Login(
		ctx context.Context,
		username string,
		password string,
	) (models.TokenPair, error)
	Register(
		ctx context.Context,
		username string,
		password string,
	) (userID int64, err error)
	Refresh(
		ctx context.Context,
		refreshToken string,
	) (models.TokenPair, error)
	User(
		ctx context.Context,
		userID int64,
	) (*models.User, error)
}

type serverAPI struct {
	logger *slog.Logger
	auth   Auth
	secret string
}

// Register mounts the auth endpoints on mux.
func Register(mux *http.ServeMux, logger *slog.Logger, auth Auth, secret string) {
	s := &serverAPI{logger: logger, auth: auth, secret: secret}

	mux.HandleFunc("POST "+RegisterPath, s.register)
	mux.HandleFunc("POST "+LoginPath, s.login)
	mux.HandleFunc("POST "+RefreshPath, s.refresh)
	mux.Handle("GET "+MePath, s.requireBearer(http.HandlerFunc(s.me)))
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *serverAPI) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	userID, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUserAlreadyExists) {
			writeError(w, http.StatusConflict, "user already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{ID: userID, Username: req.Username})
}

func (s *serverAPI) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	pair, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Access: pair.AccessToken, Refresh: pair.RefreshToken})
}

func (s *serverAPI) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decode(w, r, &req) {
		return
	}

	if req.Refresh == "" {
		writeError(w, http.StatusBadRequest, "refresh is required")
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.Refresh)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidRefreshToken):
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
		case errors.Is(err, auth.ErrRefreshTokenRevoked):
			writeError(w, http.StatusUnauthorized, "refresh token revoked")
		case errors.Is(err, auth.ErrRefreshTokenExpired):
			writeError(w, http.StatusUnauthorized, "refresh token expired")
		default:
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Access: pair.AccessToken, Refresh: pair.RefreshToken})
}

func (s *serverAPI) me(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(userIDKey{}).(int64)

	user, err := s.auth.User(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Username: user.Username})
}

type userIDKey struct{}

// requireBearer rejects requests without a valid access JWT.
func (s *serverAPI) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op = "http.auth.requireBearer"

		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "authentication credentials were not provided")
			return
		}

		claims, err := jwt.ParseToken(raw, s.secret)
		if err != nil {
			s.logger.Debug("access token rejected", slog.String("op", op), sl.Err(err))
			writeError(w, http.StatusUnauthorized, "token not valid")
			return
		}

		userID, err := jwt.UserID(claims)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "token not valid")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *serverAPI) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
