package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := WithTenant(context.Background(), "default")

	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "default", id)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)

	_, err := MustFromContext(WithTenant(context.Background(), ""))
	assert.ErrorIs(t, err, ErrTenantRequired)
}

func TestNormalize(t *testing.T) {
	id, err := Normalize("  t1 ")
	require.NoError(t, err)
	assert.Equal(t, "t1", id)

	_, err = Normalize("   ")
	assert.ErrorIs(t, err, ErrTenantRequired)
}
