package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

const DefaultTokenTTL = 15 * time.Minute

// Signer issues and verifies HS256 agent tokens with a shared secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) (*Signer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

func (s *Signer) CreateToken(agent Agent, validUntil int64) (TokenResponse, error) {
	if validUntil == 0 {
		validUntil = s.now().Add(DefaultTokenTTL).Unix()
	}

	claims := jwt.MapClaims{
		"id":             agent.Id,
		"email":          agent.Email,
		"organizationId": agent.OrganizationID,
		"exp":            validUntil,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{AccessToken: tokenString, ExpiresAt: validUntil}, nil
}

// ParseToken verifies signature and expiry and returns the agent.
func (s *Signer) ParseToken(tokenString string) (Agent, error) {
	if tokenString == "" {
		return Agent{}, fmt.Errorf("%w: token string is empty", ErrInvalidToken)
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return Agent{}, ErrExpiredToken
		}
		return Agent{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Agent{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Agent{}, fmt.Errorf("%w: claims of unexpected type", ErrInvalidToken)
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return Agent{}, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}
	if s.now().Unix() > int64(exp) {
		return Agent{}, ErrExpiredToken
	}

	agent := Agent{
		Id:             stringClaim(claims, "id"),
		Email:          stringClaim(claims, "email"),
		OrganizationID: stringClaim(claims, "organizationId"),
	}
	if agent.Id == "" || agent.OrganizationID == "" {
		return Agent{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return agent, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}
