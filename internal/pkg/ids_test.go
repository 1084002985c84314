package pkg

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	t.Parallel()

	id := NewID()
	got, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{"", "not-an-id", id.String()[:25], "ZZZZZZZZZZZZZZZZZZZZZZZZZZ"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, bad)
		assert.False(t, ValidID(bad), bad)
	}

	assert.True(t, IsZeroID(ulid.ULID{}))
	assert.False(t, IsZeroID(id))
	assert.Less(t, id.String(), NewIDString())
}
