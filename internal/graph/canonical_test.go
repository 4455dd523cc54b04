package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Elara Voss", "elara voss"},
		{"  Elara   Voss  ", "elara voss"},
		{"ELARA\tVOSS", "elara voss"},
		{"elara voss", "elara voss"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		got := CanonicalName(tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
		// Canonicalization is idempotent.
		assert.Equal(t, got, CanonicalName(got))
	}
}

func TestNormalizeAliases(t *testing.T) {
	aliases := NormalizeAliases("Elara Voss", []string{
		"The Ash Witch",
		"the  ash witch", // duplicate modulo canonical form
		"Elara Voss",     // the display name never counts as an alias
		"  ",
		"Lady Voss",
	})
	assert.Equal(t, []string{"The Ash Witch", "Lady Voss"}, aliases)
}
