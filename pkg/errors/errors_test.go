package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypes(t *testing.T) {
	t.Run("FetchFailedWrapsCause", func(t *testing.T) {
		cause := stderrors.New("upstream 503")
		err := NewFetchFailed("home-feed-limit:10", cause)

		assert.True(t, IsFetchFailed(err))
		assert.False(t, IsTierIO(err))
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "home-feed-limit:10")
	})

	t.Run("TierIONamesTheTier", func(t *testing.T) {
		err := NewTierIO("persistent", "write entry", stderrors.New("disk full"))
		assert.True(t, IsTierIO(err))
		assert.Contains(t, err.Error(), "persistent tier")
	})

	t.Run("WrapPreservesType", func(t *testing.T) {
		err := Wrap(NewValidation("bad ttl"), "loading config")
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.Contains(t, err.Error(), "loading config")
	})

	t.Run("WrapNil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, "nothing"))
	})
}
