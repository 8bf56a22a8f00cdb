package client

import (
	"net/url"
	"strings"

	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/session"
)

// ParseInvite extracts the session code from an invite link such as
// https://host/join?sessionCode=ABC123, or accepts a bare code.
func ParseInvite(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", domain.NewValidationError("invite", "is empty")
	}

	code := s
	if strings.Contains(s, "?") || strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", domain.NewValidationError("invite", "is not a valid link")
		}
		code = u.Query().Get("sessionCode")
		if code == "" {
			return "", domain.NewValidationError("invite", "link has no sessionCode")
		}
	}

	normalized, ok := session.NormalizeCode(code)
	if !ok {
		return "", domain.NewValidationError("sessionCode", "must be 6 letters or digits")
	}
	return normalized, nil
}
