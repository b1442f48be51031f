package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndParseToken(t *testing.T) {
	signer, err := NewSigner("secret")
	require.NoError(t, err)

	agent := Agent{Id: "agent-1", Email: "a@example.com", OrganizationID: "org-1"}
	resp, err := signer.CreateToken(agent, 0)
	require.NoError(t, err)
	assert.Greater(t, resp.ExpiresAt, time.Now().Unix())

	parsed, err := signer.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, agent, parsed)
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	signer, err := NewSigner("secret")
	require.NoError(t, err)
	other, err := NewSigner("other")
	require.NoError(t, err)

	resp, err := other.CreateToken(Agent{Id: "a", OrganizationID: "o"}, 0)
	require.NoError(t, err)

	_, err = signer.ParseToken(resp.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	signer, err := NewSigner("secret")
	require.NoError(t, err)

	resp, err := signer.CreateToken(Agent{Id: "a", OrganizationID: "o"}, time.Now().Add(-time.Minute).Unix())
	require.NoError(t, err)

	_, err = signer.ParseToken(resp.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseTokenRequiresOrganization(t *testing.T) {
	signer, err := NewSigner("secret")
	require.NoError(t, err)

	resp, err := signer.CreateToken(Agent{Id: "a"}, 0)
	require.NoError(t, err)

	_, err = signer.ParseToken(resp.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner(" ")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer abc"))
	assert.Empty(t, BearerToken("abc"))
	assert.Empty(t, BearerToken("Bear"))
	assert.Empty(t, BearerToken(""))
}
