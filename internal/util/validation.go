package util

import (
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

const MinPasswordLength = 6

// IsValidUUID accepts only the canonical lowercase hyphenated form.
func IsValidUUID(s string) bool {
	id, err := uuid.Parse(s)
	return err == nil && id.String() == s
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail accepts a bare address, no display name.
func IsValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@")+1:], ".")
}

func IsValidPassword(password string) bool {
	return len(password) >= MinPasswordLength && len(password) <= 72
}
