package inventory_test

import (
	"testing"

	"github.com/facinv/closing-engine/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockRef_ParseAndKinds(t *testing.T) {
	ref, err := inventory.ParseStockRef("ingredient", "flour")
	require.NoError(t, err)
	id, ok := ref.Ingredient()
	assert.True(t, ok)
	assert.Equal(t, inventory.IngredientID("flour"), id)
	_, ok = ref.Product()
	assert.False(t, ok)

	_, err = inventory.ParseStockRef("both", "x")
	assert.Error(t, err)
	assert.True(t, inventory.StockRef{}.IsZero())
}
