package models

// Credentials is the client-side pair written on login and refresh.
type Credentials struct {
	AccessToken  string `json:"access"`
	RefreshToken string `json:"refresh"`
}
