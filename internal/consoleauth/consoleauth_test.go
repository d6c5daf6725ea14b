package consoleauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNoAuthNeverRequiresAuthentication(t *testing.T) {
	g := NoAuth()
	assert.False(t, g.Required())
	assert.True(t, g.Check("anything"))
	assert.True(t, g.Check(""))
}

func TestGateRequiresMatchingToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse-battery-staple"), bcrypt.DefaultCost)
	require.NoError(t, err)

	g := New(string(hash))
	assert.True(t, g.Required())
	assert.True(t, g.Check("correct-horse-battery-staple"))
	assert.False(t, g.Check("wrong-token"))
}
