// Package services holds the contest platform's business rules. Handlers
// call into these types; they in turn depend only on the store, the payment
// gateway and the role lookup.
package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"contest-platform/internal/apperr"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1
}

// parseID rejects identifiers that are not UUIDs before they reach the store.
func parseID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: invalid identifier %q", apperr.ErrValidation, id)
	}
	return u.String(), nil
}
