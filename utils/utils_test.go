package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateTokenIsRandomHex(t *testing.T) {
	a := CreateToken()
	b := CreateToken()

	assert.Len(t, a, 64)
	assert.Regexp(t, `^[0-9a-f]{64}$`, a)
	assert.NotEqual(t, a, b)
}

func TestDeviceType(t *testing.T) {
	cases := map[string]string{
		"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)":            DeviceTablet,
		"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari":   DeviceMobile,
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)":   DeviceMobile,
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0": DeviceDesktop,
		"": DeviceDesktop,
	}
	for ua, want := range cases {
		assert.Equal(t, want, DeviceType(ua), ua)
	}
}

func TestForwardedClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.Equal(t, "unknown", ForwardedClientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", ForwardedClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", ForwardedClientIP(req))
	assert.Equal(t, "203.0.113.9", RealClientIP(req))
}

func TestRealClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", RealClientIP(req))
}
