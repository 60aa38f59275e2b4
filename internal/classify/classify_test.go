package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/schemadmin/model"
)

func TestClassify_declaredTypes(t *testing.T) {
	tests := []struct {
		typ  string
		want model.FieldKind
	}{
		{"text", model.KindText},
		{"CharField", model.KindText},
		{"email", model.KindText},
		{"url", model.KindText},
		{"slug", model.KindText},
		{"string", model.KindText},
		{"integer", model.KindNumber},
		{"bigint", model.KindNumber},
		{"decimal", model.KindNumber},
		{"float", model.KindNumber},
		{"date", model.KindDate},
		{"DateTimeField", model.KindDateTime},
		{"date-time", model.KindDateTime},
		{"time", model.KindTime},
		{"boolean", model.KindBoolean},
		{"nullable-boolean", model.KindBoolean},
		{"NullBooleanField", model.KindBoolean},
		{"file", model.KindFile},
		{"ImageField", model.KindFile},
		{"document", model.KindFile},
		{"media", model.KindFile},
		{"ForeignKey", model.KindSingleRelation},
		{"OneToOneField", model.KindSingleRelation},
		{"ManyToManyField", model.KindMultiRelation},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(model.Field{Name: "x", Type: tt.typ}))
		})
	}
}

func TestClassify_relationTypeWithoutDeclaredType(t *testing.T) {
	f := model.Field{Name: "members", RelationType: "ManyToMany"}
	assert.Equal(t, model.KindMultiRelation, Classify(f))

	f = model.Field{Name: "owner", RelationType: "ForeignKey"}
	assert.Equal(t, model.KindSingleRelation, Classify(f))
}

func TestClassify_relatedModelSuffixID(t *testing.T) {
	// Matches both the related-model rule and the _id rule; the result is a
	// single relation either way.
	f := model.Field{Name: "category_id", RelatedModel: "catalog.category"}
	assert.Equal(t, model.KindSingleRelation, Classify(f))

	f = model.Field{Name: "category_id"}
	assert.Equal(t, model.KindSingleRelation, Classify(f))
}

func TestClassify_pluralizationFallback(t *testing.T) {
	f := model.Field{Name: "tags", RelatedModel: "catalog.tag"}
	assert.Equal(t, model.KindMultiRelation, Classify(f))

	// Singular names ending in "s" are read as plural.
	f = model.Field{Name: "status", RelatedModel: "catalog.status"}
	assert.Equal(t, model.KindMultiRelation, Classify(f))

	// Declared ForeignKey does not suppress the fallback.
	f = model.Field{Name: "address", Type: "ForeignKey", RelatedModel: "geo.address"}
	assert.Equal(t, model.KindMultiRelation, Classify(f))

	// No related model: plural name alone is not a relation signal.
	f = model.Field{Name: "notes"}
	assert.Equal(t, model.KindUnhandled, Classify(f))
}

func TestClassify_lookup(t *testing.T) {
	f := model.Field{Name: "gender", RelatedModel: LookupModel}
	assert.Equal(t, model.KindLookup, Classify(f))

	f = model.Field{Name: "country", LimitChoicesTo: "{'lookup_type__name': 'Country'}"}
	assert.Equal(t, model.KindLookup, Classify(f))

	f = model.Field{Name: "gender_id", Type: "ForeignKey", RelatedModel: LookupModel}
	assert.Equal(t, model.KindLookup, Classify(f))
}

func TestClassify_limitChoicesToOnly(t *testing.T) {
	f := model.Field{Name: "owner", LimitChoicesTo: "{'is_staff': True}"}
	assert.Equal(t, model.KindSingleRelation, Classify(f))
}

func TestClassify_choicesAndUnhandled(t *testing.T) {
	f := model.Field{Name: "state", Type: "choice", Choices: []model.Choice{{Value: "a", Label: "A"}}}
	assert.Equal(t, model.KindChoice, Classify(f))

	// Declared kinds win over choices; the dropdown flag stays on the field.
	f = model.Field{Name: "state", Type: "char", Choices: []model.Choice{{Value: "a", Label: "A"}}}
	assert.Equal(t, model.KindText, Classify(f))
	assert.True(t, f.HasChoices())

	assert.Equal(t, model.KindUnhandled, Classify(model.Field{Name: "blob", Type: "json"}))
	assert.Equal(t, model.KindUnhandled, Classify(model.Field{Name: "blob"}))
}

func TestClassify_deterministic(t *testing.T) {
	fields := []model.Field{
		{Name: "tags", RelatedModel: "catalog.tag"},
		{Name: "category_id"},
		{Name: "when", Type: "datetime"},
		{Name: "x"},
	}
	for _, f := range fields {
		first := Classify(f)
		for i := 0; i < 5; i++ {
			require.Equal(t, first, Classify(f), "field %q", f.Name)
		}
	}
}

func TestFields_assignsKind(t *testing.T) {
	in := []model.Field{{Name: "title", Type: "char"}, {Name: "tags", RelatedModel: "a.tag"}}
	out := Fields(in)
	require.Len(t, out, 2)
	assert.Equal(t, model.KindText, out[0].Kind)
	assert.Equal(t, model.KindMultiRelation, out[1].Kind)
	assert.Empty(t, in[0].Kind, "input must not be mutated")
}

func TestIsIntegerType(t *testing.T) {
	assert.True(t, IsIntegerType("integer"))
	assert.True(t, IsIntegerType("IntegerField"))
	assert.True(t, IsIntegerType("bigint"))
	assert.False(t, IsIntegerType("decimal"))
	assert.False(t, IsIntegerType(""))
}
