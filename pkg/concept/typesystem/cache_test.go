package typesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertexdb/vertexdb/pkg/encoding"
)

type fakeSource struct {
	types []*Type
}

func (f fakeSource) AllTypes() ([]*Type, error) {
	return f.types, nil
}

func mustBuild(t *testing.T, types []*Type) *Cache {
	t.Helper()
	c, err := Build(fakeSource{types: types})
	require.NoError(t, err)
	return c
}

func TestCacheGetByLabel(t *testing.T) {
	animal := &Type{ID: 1, Kind: KindEntity, Label: Label{Name: "animal"}}
	dog := &Type{ID: 2, Kind: KindEntity, Label: Label{Name: "dog"}, Supertype: &animal.ID}

	c := mustBuild(t, []*Type{animal, dog})

	got, ok := c.GetByLabel(Label{Name: "dog"})
	require.True(t, ok)
	assert.Equal(t, encoding.TypeID(2), got.ID)

	_, ok = c.GetByLabel(Label{Name: "cat"})
	assert.False(t, ok)
}

func TestCacheSubtypesTransitive(t *testing.T) {
	animal := &Type{ID: 1, Kind: KindEntity, Label: Label{Name: "animal"}}
	dog := &Type{ID: 2, Kind: KindEntity, Label: Label{Name: "dog"}, Supertype: &animal.ID}
	puppy := &Type{ID: 3, Kind: KindEntity, Label: Label{Name: "puppy"}, Supertype: &dog.ID}
	cat := &Type{ID: 4, Kind: KindEntity, Label: Label{Name: "cat"}, Supertype: &animal.ID}

	c := mustBuild(t, []*Type{animal, dog, puppy, cat})

	subtypes := c.Subtypes(animal.ID)
	assert.ElementsMatch(t, []encoding.TypeID{1, 2, 3, 4}, subtypes)

	subtypes = c.Subtypes(dog.ID)
	assert.ElementsMatch(t, []encoding.TypeID{2, 3}, subtypes)

	assert.True(t, IsSubtypeOf(c, puppy.ID, animal.ID))
	assert.False(t, IsSubtypeOf(c, animal.ID, puppy.ID))
}

func TestCacheSupertypes(t *testing.T) {
	animal := &Type{ID: 1, Kind: KindEntity, Label: Label{Name: "animal"}}
	dog := &Type{ID: 2, Kind: KindEntity, Label: Label{Name: "dog"}, Supertype: &animal.ID}
	puppy := &Type{ID: 3, Kind: KindEntity, Label: Label{Name: "puppy"}, Supertype: &dog.ID}

	c := mustBuild(t, []*Type{animal, dog, puppy})

	supers, ok := c.Supertypes(puppy.ID)
	require.True(t, ok)
	assert.Equal(t, []encoding.TypeID{2, 1}, supers)
}

func TestCacheCapabilitiesOfInheritsFromSupertype(t *testing.T) {
	name := &Type{ID: 10, Kind: KindAttribute, Label: Label{Name: "name"}, ValueType: ValueTypeString}
	age := &Type{ID: 11, Kind: KindAttribute, Label: Label{Name: "age"}, ValueType: ValueTypeLong}

	animal := &Type{
		ID: 1, Kind: KindEntity, Label: Label{Name: "animal"},
		Capabilities: []Capability{{Kind: CapabilityOwns, Source: 1, Target: name.ID}},
	}
	dog := &Type{
		ID: 2, Kind: KindEntity, Label: Label{Name: "dog"}, Supertype: &animal.ID,
		Capabilities: []Capability{{Kind: CapabilityOwns, Source: 2, Target: age.ID}},
	}

	c := mustBuild(t, []*Type{name, age, animal, dog})

	owns := c.CapabilitiesOf(dog.ID, CapabilityOwns)
	targets := make([]encoding.TypeID, len(owns))
	for i, cap := range owns {
		targets[i] = cap.Target
	}
	assert.ElementsMatch(t, []encoding.TypeID{age.ID, name.ID}, targets)
}

func TestCacheLabelPrefix(t *testing.T) {
	c := mustBuild(t, []*Type{
		{ID: 1, Kind: KindEntity, Label: Label{Name: "person"}},
		{ID: 2, Kind: KindEntity, Label: Label{Name: "permission"}},
		{ID: 3, Kind: KindEntity, Label: Label{Name: "dog"}},
	})

	matches := c.LabelPrefix("per")
	assert.Len(t, matches, 2)
}
