package session

import (
	"strings"
	"unicode/utf8"

	"github.com/tastebuds/match-app/internal/domain"
)

// MaxFilterChars bounds each filter field.
const MaxFilterChars = 64

// NormalizeFilters trims both filter fields and validates them.
func NormalizeFilters(f domain.Filters) (domain.Filters, error) {
	out := domain.Filters{
		Category:   strings.TrimSpace(f.Category),
		PriceRange: strings.TrimSpace(f.PriceRange),
	}
	if err := validateFilter("category", out.Category); err != nil {
		return domain.Filters{}, err
	}
	if err := validateFilter("priceRange", out.PriceRange); err != nil {
		return domain.Filters{}, err
	}
	return out, nil
}

func validateFilter(field, value string) error {
	if !utf8.ValidString(value) {
		return domain.NewValidationError(field, "contains invalid UTF-8")
	}
	if utf8.RuneCountInString(value) > MaxFilterChars {
		return domain.NewValidationError(field, "exceeds 64 characters")
	}
	return nil
}
