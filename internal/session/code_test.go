package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebuds/match-app/internal/domain"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		normalized, ok := NormalizeCode(code)
		require.True(t, ok, code)
		assert.Equal(t, code, normalized)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"ABC123", "ABC123", true},
		{" abc123\n", "ABC123", true},
		{"ABC12", "", false},
		{"ABC1234", "", false},
		{"ABC-12", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeCode(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeFilters(t *testing.T) {
	f, err := NormalizeFilters(domain.Filters{Category: "  Italiana ", PriceRange: "$$"})
	require.NoError(t, err)
	assert.Equal(t, domain.Filters{Category: "Italiana", PriceRange: "$$"}, f)

	_, err = NormalizeFilters(domain.Filters{Category: string([]byte{0xff, 0xfe})})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "category", verr.Field)

	// 64 multibyte runes are allowed.
	ok := ""
	for i := 0; i < MaxFilterChars; i++ {
		ok += "é"
	}
	_, err = NormalizeFilters(domain.Filters{PriceRange: ok})
	assert.NoError(t, err)
}
