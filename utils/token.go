package utils

import (
	"strings"

	"github.com/google/uuid"
)

// CreateToken returns an opaque 64 character session token built from two
// random UUIDs. It returns an empty string when the system entropy source fails.
func CreateToken() string {
	first, err := uuid.NewRandom()
	if err != nil {
		return ""
	}

	second, err := uuid.NewRandom()
	if err != nil {
		return ""
	}

	return strings.ReplaceAll(first.String(), "-", "") + strings.ReplaceAll(second.String(), "-", "")
}
