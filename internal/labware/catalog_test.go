package labware_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platecrane/internal/labware"
)

func TestDefaultCatalog(t *testing.T) {
	catalog, err := labware.NewCatalog(labware.DefaultSpecs())
	require.NoError(t, err)
	assert.Equal(t, []string{"96_well", "pcr_plate"}, catalog.Types())

	spec, ok := catalog.Lookup("96_well")
	require.True(t, ok)
	assert.InDelta(t, 16.2562, spec.Height, 1e-9)

	offset, err := catalog.Offset("96_well", labware.GrabLidExchange)
	require.NoError(t, err)
	assert.Equal(t, -21, offset)

	offset, err = catalog.Offset("pcr_plate", labware.GrabTower)
	require.NoError(t, err)
	assert.Equal(t, -17, offset)
}

func TestCatalogRejectsBadSpecs(t *testing.T) {
	_, err := labware.NewCatalog(map[string]labware.PlateSpec{" ": {Height: 1}})
	assert.Error(t, err)

	_, err = labware.NewCatalog(map[string]labware.PlateSpec{"flat": {Height: 0}})
	assert.Error(t, err)
}

func TestCatalogUnknownType(t *testing.T) {
	catalog, err := labware.NewCatalog(labware.DefaultSpecs())
	require.NoError(t, err)
	_, err = catalog.Offset("deep_well", labware.GrabTower)
	assert.Error(t, err)
	assert.False(t, catalog.Has("deep_well"))

	_, err = labware.PlateSpec{}.Offset("grab_sideways")
	assert.Error(t, err)
}

func TestCatalogCopiesInput(t *testing.T) {
	specs := labware.DefaultSpecs()
	catalog, err := labware.NewCatalog(specs)
	require.NoError(t, err)
	delete(specs, "96_well")
	assert.True(t, catalog.Has("96_well"))
}
