package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/contest/internal/model"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name    string
		address string
		opts    NormalizeOptions
		want    string
		ok      bool
	}{
		{"trim and fold", "  Ada.Lovelace@Example.EDU ", NormalizeOptions{}, "ada.lovelace@example.edu", true},
		{"tag kept by default", "ada+x@example.edu", NormalizeOptions{}, "ada+x@example.edu", true},
		{"tag stripped", "ada+promo@example.edu", NormalizeOptions{Tag: "+"}, "ada@example.edu", true},
		{"dots stripped", "a.d.a@example.edu", NormalizeOptions{StripDots: true}, "ada@example.edu", true},
		{"tag and dots", "A.da+x.y@example.edu", NormalizeOptions{Tag: "+", StripDots: true}, "ada@example.edu", true},
		{"dots in domain kept", "ada@cs.example.edu", NormalizeOptions{StripDots: true}, "ada@cs.example.edu", true},
		{"trailing dot on domain", "ada@example.edu.", NormalizeOptions{}, "ada@example.edu", true},
		{"no at", "ada.example.edu", NormalizeOptions{}, "", false},
		{"two ats", "ada@x@example.edu", NormalizeOptions{}, "", false},
		{"empty local", "@example.edu", NormalizeOptions{}, "", false},
		{"empty after tag", "+x@example.edu", NormalizeOptions{Tag: "+"}, "", false},
		{"empty domain", "ada@", NormalizeOptions{}, "", false},
		{"inner space", "ada lovelace@example.edu", NormalizeOptions{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeEmail(tt.address, tt.opts)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_SameStudentSameKey(t *testing.T) {
	opts := NormalizeOptions{Tag: "+", StripDots: true}
	emails := []string{
		"test@example.edu",
		"test+tag@example.edu",
		"te.st@example.edu",
		" TE.ST+tag@EXAMPLE.edu",
	}
	keys := map[string]bool{}
	for _, email := range emails {
		identity, err := Normalize(model.VerificationEvent{FirstName: "T", LastName: "S", Email: email}, opts)
		require.NoError(t, err)
		keys[identity.Email] = true
		assert.Equal(t, "example.edu", identity.School)
	}
	assert.Len(t, keys, 1)
}

func TestNormalize_Malformed(t *testing.T) {
	_, err := Normalize(model.VerificationEvent{FirstName: "A", LastName: "B", Email: "   "}, NormalizeOptions{})
	assert.ErrorIs(t, err, ErrMalformedIdentity)

	_, err = Normalize(model.VerificationEvent{FirstName: "A", LastName: "B", Email: "nope"}, NormalizeOptions{})
	assert.ErrorIs(t, err, ErrMalformedIdentity)

	identity, err := Normalize(model.VerificationEvent{FirstName: "  ", LastName: "B", Email: "a@example.edu"}, NormalizeOptions{})
	require.NoError(t, err)
	assert.Empty(t, identity.FirstName)
}
