package order

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProducts() []Product {
	return []Product{
		{ID: "apple", Name: "Apple", Category: CategoryFood, Rarity: RarityCommon, SpawnWeight: 50, Available: true},
		{ID: "phone", Name: "Phone", Category: CategoryElectronics, Rarity: RarityRare, SpawnWeight: 20, Available: true},
	}
}

func standardDef(id string, base int) Definition {
	return Definition{
		ID:               id,
		Type:             TypeStandard,
		Difficulty:       DifficultyEasy,
		RequiredProducts: []string{"apple"},
		BasePoints:       base,
		ExpressBonus:     25,
		ExpressTimeLimit: 60 * time.Second,
		PriorityLevel:    1,
	}
}

func expressDef(id string, base, bonus int, limit time.Duration) Definition {
	d := standardDef(id, base)
	d.Type = TypeExpress
	d.ExpressBonus = bonus
	d.ExpressTimeLimit = limit
	return d
}

func TestNewCatalog(t *testing.T) {
	c, err := NewCatalog(testProducts(), []Definition{standardDef("s1", 50), expressDef("e1", 50, 25, time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	d, ok := c.Definition("e1")
	require.True(t, ok)
	assert.True(t, d.IsExpress())

	_, ok = c.Definition("missing")
	assert.False(t, ok)

	products := c.Products()
	require.Len(t, products, 2)
	assert.Equal(t, "apple", products[0].ID)
}

func TestCatalogIsImmutable(t *testing.T) {
	c, err := NewCatalog(testProducts(), []Definition{standardDef("s1", 50)})
	require.NoError(t, err)

	d, _ := c.Definition("s1")
	d.RequiredProducts[0] = "mutated"
	again, _ := c.Definition("s1")
	assert.Equal(t, "apple", again.RequiredProducts[0])
}

func TestCatalogRejectsInvalid(t *testing.T) {
	unknown := standardDef("bad", 10)
	unknown.RequiredProducts = []string{"ghost"}

	noLimit := expressDef("e", 10, 5, 0)

	badPriority := standardDef("p", 10)
	badPriority.PriorityLevel = 9

	cases := []struct {
		name string
		defs []Definition
		want error
	}{
		{name: "unknown product", defs: []Definition{unknown}, want: ErrUnknownProduct},
		{name: "duplicate", defs: []Definition{standardDef("a", 1), standardDef("a", 2)}, want: ErrDuplicateID},
		{name: "express without limit", defs: []Definition{noLimit}},
		{name: "priority out of range", defs: []Definition{badPriority}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCatalog(testProducts(), tc.defs)
			require.Error(t, err)
			if tc.want != nil {
				assert.True(t, errors.Is(err, tc.want), "got %v", err)
			}
		})
	}
}

func TestEmptyCatalogAllowed(t *testing.T) {
	c, err := NewCatalog(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestRequirementsDescription(t *testing.T) {
	d := standardDef("s", 1)
	assert.Equal(t, "No special requirements", d.RequirementsDescription())

	d.Requirements = RequirementFragile | RequirementHazardous
	assert.True(t, d.HasRequirement(RequirementFragile))
	assert.False(t, d.HasRequirement(RequirementRefrigeration))
	assert.Equal(t, "Fragile, Hazardous Material", d.RequirementsDescription())
}

func TestParseRequirement(t *testing.T) {
	r, err := ParseRequirement(" Refrigeration ")
	require.NoError(t, err)
	assert.Equal(t, RequirementRefrigeration, r)

	_, err = ParseRequirement("radioactive")
	assert.Error(t, err)
}

func TestDefinitionPoints(t *testing.T) {
	assert.Equal(t, 75, expressDef("e", 50, 25, time.Minute).Points())
	assert.Equal(t, 50, standardDef("s", 50).Points())
}

func TestProductRarity(t *testing.T) {
	p := Product{ID: "x", Category: CategoryFood, Rarity: RarityUncommon, SpawnWeight: 50, Available: true}
	assert.Equal(t, 1.5, p.RarityMultiplier())
	assert.InDelta(t, 35.0, p.EffectiveSpawnRate(), 1e-9)

	p.Rarity = RarityVeryRare
	assert.Equal(t, 3.0, p.RarityMultiplier())
	assert.InDelta(t, 10.0, p.EffectiveSpawnRate(), 1e-9)

	p.Available = false
	assert.Equal(t, 0.0, p.EffectiveSpawnRate())
}
