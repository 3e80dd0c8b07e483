package pincode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaravsagar/agriatoo-core/internal/docstore"
)

func TestStatic_Validate(t *testing.T) {
	v := NewStatic([]string{"380052", "110001"})
	ctx := context.Background()

	assert.NoError(t, v.Validate(ctx, "380052"))
	assert.ErrorIs(t, v.Validate(ctx, "999999"), ErrNotServiceable)
}

func TestStoreValidator_Validate(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "serviceablePincodes", "380052", map[string]any{
		"pincode": "380052",
		"city":    "Ahmedabad",
	}))

	v := NewStoreValidator(store, "")

	assert.NoError(t, v.Validate(ctx, "380052"))
	assert.ErrorIs(t, v.Validate(ctx, "560001"), ErrNotServiceable)
}
