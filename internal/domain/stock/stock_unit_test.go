package stock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStockUnit(t *testing.T) {
	t.Run("creates free unit", func(t *testing.T) {
		unit, err := NewStockUnit("SHOE-42-BLK", "A1", 3)

		require.NoError(t, err)
		assert.True(t, unit.IsFree())
		assert.Equal(t, OrderNumUnallocated, unit.OrderNum)
		assert.Equal(t, 3, unit.Quantity)
		assert.NotEqual(t, unit.ID.String(), "00000000-0000-0000-0000-000000000000")
	})

	t.Run("rejects empty sku", func(t *testing.T) {
		_, err := NewStockUnit("  ", "A1", 1)
		assert.Error(t, err)
	})

	t.Run("rejects negative quantity", func(t *testing.T) {
		_, err := NewStockUnit("SHOE-42-BLK", "A1", -1)
		assert.Error(t, err)
	})
}

func TestStockUnit_AssignTo(t *testing.T) {
	t.Run("assigns single-quantity unit", func(t *testing.T) {
		unit, _ := NewStockUnit("SHOE-42-BLK", "A1", 1)

		err := unit.AssignTo("SO1001")

		require.NoError(t, err)
		assert.True(t, unit.Allocated)
		assert.Equal(t, "SO1001", unit.OrderNum)
		assert.Equal(t, 1, unit.Quantity)
		assert.False(t, unit.IsFree())
	})

	t.Run("rejects multi-quantity unit", func(t *testing.T) {
		unit, _ := NewStockUnit("SHOE-42-BLK", "A1", 2)

		err := unit.AssignTo("SO1001")
		assert.Error(t, err)
		assert.True(t, unit.IsFree())
	})

	t.Run("rejects double assignment", func(t *testing.T) {
		unit, _ := NewStockUnit("SHOE-42-BLK", "A1", 1)
		require.NoError(t, unit.AssignTo("SO1001"))

		err := unit.AssignTo("SO1002")
		assert.Error(t, err)
		assert.Equal(t, "SO1001", unit.OrderNum)
	})

	t.Run("rejects sentinel order number", func(t *testing.T) {
		unit, _ := NewStockUnit("SHOE-42-BLK", "A1", 1)

		err := unit.AssignTo(OrderNumUnallocated)
		assert.Error(t, err)
	})
}

func TestStockUnit_Split(t *testing.T) {
	t.Run("conserves quantity and mints fresh id", func(t *testing.T) {
		unit, _ := NewStockUnit("SHOE-42-BLK", "B2", 5)
		unit.GroupID = "G100"
		unit.Supplier = "acme"
		unit.Brand = "Comfy"

		remainder, err := unit.Split("SO1001")

		require.NoError(t, err)
		assert.Equal(t, 1, unit.Quantity)
		assert.True(t, unit.Allocated)
		assert.Equal(t, "SO1001", unit.OrderNum)

		assert.Equal(t, 4, remainder.Quantity)
		assert.True(t, remainder.IsFree())
		assert.Equal(t, unit.SKU, remainder.SKU)
		assert.Equal(t, unit.Location, remainder.Location)
		assert.Equal(t, unit.GroupID, remainder.GroupID)
		assert.Equal(t, unit.Supplier, remainder.Supplier)
		assert.Equal(t, unit.Brand, remainder.Brand)
		assert.NotEqual(t, unit.ID, remainder.ID)

		assert.Equal(t, 5, unit.Quantity+remainder.Quantity)
	})

	t.Run("rejects single-quantity unit", func(t *testing.T) {
		unit, _ := NewStockUnit("SHOE-42-BLK", "B2", 1)

		_, err := unit.Split("SO1001")
		assert.Error(t, err)
		assert.True(t, unit.IsFree())
	})

	t.Run("rejects allocated unit", func(t *testing.T) {
		unit, _ := NewStockUnit("SHOE-42-BLK", "B2", 5)
		_, err := unit.Split("SO1001")
		require.NoError(t, err)

		_, err = unit.Split("SO1002")
		assert.Error(t, err)
	})
}
