package jwt

import "errors"

var (
	ErrInvalidToken  = errors.New("jwt: invalid token")
	ErrExpiredToken  = errors.New("jwt: token expired")
	ErrMissingSecret = errors.New("jwt: signing secret is empty")
)

// Agent is the identity carried by an agent bearer token.
type Agent struct {
	Id             string `json:"id"`
	Email          string `json:"email"`
	OrganizationID string `json:"organizationId"`
}

type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}
