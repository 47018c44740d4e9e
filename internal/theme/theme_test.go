package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	th := Default()
	require.NoError(t, th.Set("User", "BabyPink"))
	assert.Equal(t, "babypink", th.Color(RoleUser))

	assert.ErrorIs(t, th.Set("narrator", "red"), ErrInvalidRole)
	assert.ErrorIs(t, th.Set("user", "octarine"), ErrInvalidColor)
	assert.Equal(t, "babypink", th.Color(RoleUser))
}

func TestColorNamesSorted(t *testing.T) {
	names := ColorNames()
	assert.Len(t, names, len(Colors))
	assert.IsNonDecreasing(t, names)
}
