package storage

import "errors"

// Key names one of the two persisted credentials.
type Key string

const (
	KeyAccessToken  Key = "access_token"
	KeyRefreshToken Key = "refresh_token"
)

// Keys lists every credential key a store may hold.
var Keys = []Key{KeyAccessToken, KeyRefreshToken}

var (
	ErrCredentialNotFound   = errors.New("credential not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
)
