package encrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePasswordStrength(t *testing.T) {
	assert.ErrorIs(t, ValidatePasswordStrength("Ab1!"), ErrWeakPassword)
	assert.ErrorIs(t, ValidatePasswordStrength("abcdefg1!"), ErrWeakPassword)
	assert.ErrorIs(t, ValidatePasswordStrength("Abcdefgh!"), ErrWeakPassword)
	assert.ErrorIs(t, ValidatePasswordStrength("Abcdefgh1"), ErrWeakPassword)
	assert.NoError(t, ValidatePasswordStrength("Abcdefg1!"))
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Sup3r$ecret")
	require.NoError(t, err)
	assert.NotEqual(t, "Sup3r$ecret", hash)

	assert.NoError(t, CheckPassword(hash, "Sup3r$ecret"))
	assert.ErrorIs(t, CheckPassword(hash, "wrong"), ErrPasswordMismatch)
}
