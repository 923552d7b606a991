package identity

import (
	"fmt"
	"strings"

	"golang.org/x/text/secure/precis"
)

// NormalizeEmail lowercases and case-folds an email address so lookups are
// case-insensitive. The local part goes through the PRECIS UsernameCaseMapped
// profile, which also rejects confusable or malformed identifier input.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", fmt.Errorf("identity: malformed email %q", email)
	}
	local, err := precis.UsernameCaseMapped.String(email[:at])
	if err != nil {
		return "", fmt.Errorf("identity: normalize email: %w", err)
	}
	domain := strings.ToLower(email[at+1:])
	return local + "@" + domain, nil
}
