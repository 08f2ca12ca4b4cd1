package codegen

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var codePattern = regexp.MustCompile(`^[2-9A-HJ-NP-Z]{4}(-[2-9A-HJ-NP-Z]{4}){3}$`)

func TestGenerate_FormatAndUniqueness(t *testing.T) {
	g := New("test-secret")
	codes, err := g.Generate(42, 10000)
	require.NoError(t, err)
	require.Len(t, codes, 10000)

	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		assert.Regexp(t, codePattern, code)
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, len(codes))
}

func TestCode_Deterministic(t *testing.T) {
	a, err := New("secret").Code(1, 5)
	require.NoError(t, err)
	b, err := New("secret").Code(1, 5)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	otherSecret, err := New("other").Code(1, 5)
	require.NoError(t, err)
	assert.NotEqual(t, a, otherSecret)

	otherContest, err := New("secret").Code(2, 5)
	require.NoError(t, err)
	assert.NotEqual(t, a, otherContest)
}

func TestGenerate_InvalidCount(t *testing.T) {
	_, err := New("secret").Generate(1, -1)
	assert.Error(t, err)

	codes, err := New("secret").Generate(1, 0)
	require.NoError(t, err)
	assert.Empty(t, codes)
}
