package models

import "time"

// RefreshToken represents an issued refresh token stored by the issuer.
type RefreshToken struct {
	TokenHash      string
	UserID         int64
	CreatedAt      time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	ReplacedByHash *string
}

// TokenPair is what the issuer hands out on login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
