package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunID(t *testing.T) {
	id1 := NewRunID()
	id2 := NewRunID()

	assert.False(t, id1.IsZero())
	assert.False(t, id1.Equals(id2))
	assert.True(t, RunID{}.IsZero())
}

func TestParseRunID(t *testing.T) {
	id := NewRunID()

	parsed, err := ParseRunID(id.String())
	require.NoError(t, err)
	assert.True(t, id.Equals(parsed))

	_, err = ParseRunID("not-a-uuid")
	assert.Error(t, err)
}
