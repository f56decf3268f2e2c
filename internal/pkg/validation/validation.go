package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"tokenshare-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// ParseUUID parses a path or body id; field names the value in the error message.
func ParseUUID(s, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: Invalid UUID format for %s", domain.ErrInvalidInput, field)
	}
	return id, nil
}

// ParseTokenAmount accepts a positive whole number of tokens. Fractions,
// exponents and strings are rejected.
func ParseTokenAmount(n json.Number) (int64, error) {
	if n == "" {
		return 0, domain.ErrInvalidAmount
	}
	v, err := n.Int64()
	if err != nil || v <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	return v, nil
}

// IsCents reports whether d has at most two decimal places.
func IsCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
