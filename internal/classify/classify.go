// Package classify assigns each field a semantic kind using an ordered set of
// heuristics over its declared metadata.
package classify

import (
	"strings"

	"github.com/pitabwire/schemadmin/model"
)

// LookupModel is the related model of the shared key/value lookup catalog.
const LookupModel = "lookup.lookup"

type relation int

const (
	relNone relation = iota
	relSingle
	relMulti
)

// typeKinds maps normalized declared types to kinds. Relation types map to
// the zero kind and are refined by relationKinds.
var typeKinds = map[string]model.FieldKind{
	"text":        model.KindText,
	"char":        model.KindText,
	"string":      model.KindText,
	"email":       model.KindText,
	"url":         model.KindText,
	"slug":        model.KindText,
	"integer":     model.KindNumber,
	"bigint":      model.KindNumber,
	"decimal":     model.KindNumber,
	"float":       model.KindNumber,
	"date":        model.KindDate,
	"datetime":    model.KindDateTime,
	"time":        model.KindTime,
	"boolean":     model.KindBoolean,
	"nullboolean": model.KindBoolean,
	"file":        model.KindFile,
	"image":       model.KindFile,
	"document":    model.KindFile,
	"media":       model.KindFile,
}

var relationKinds = map[string]relation{
	"foreignkey": relSingle,
	"onetoone":   relSingle,
	"manytomany": relMulti,
}

var integerTypes = map[string]bool{
	"integer": true,
	"bigint":  true,
}

// normalizeType lower-cases a declared type, drops a trailing "field" and
// removes separators, so "NullBooleanField", "nullable_boolean" and
// "nullboolean" all collapse.
func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t != "field" {
		t = strings.TrimSuffix(t, "field")
	}
	t = strings.NewReplacer("_", "", "-", "", " ", "").Replace(t)
	if t == "nullableboolean" {
		t = "nullboolean"
	}
	return t
}

// IsIntegerType reports whether the declared type is an integer type.
func IsIntegerType(t string) bool {
	return integerTypes[normalizeType(t)]
}

// Classify returns the kind of a field. The first matching rule wins:
//
//  1. declared type in the fixed table
//  2. relation type in the relation table
//  3. non-empty related model
//  4. name ending in "_id"
//  5. non-empty limit-choices-to expression
//  6. unhandled, or choice when the field carries choices
//
// Classify is pure; the same field always yields the same kind.
func Classify(f model.Field) model.FieldKind {
	t := normalizeType(f.Type)
	if kind, ok := typeKinds[t]; ok {
		return kind
	}
	if rel, ok := relationKinds[t]; ok {
		return relationKind(f, rel)
	}
	if rel, ok := relationKinds[normalizeType(f.RelationType)]; ok {
		return relationKind(f, rel)
	}
	if f.RelatedModel != "" {
		return relationKind(f, relNone)
	}
	if strings.HasSuffix(f.Name, "_id") {
		return relationKind(f, relNone)
	}
	if f.LimitChoicesTo != "" {
		return relationKind(f, relNone)
	}
	if f.HasChoices() {
		return model.KindChoice
	}
	return model.KindUnhandled
}

// relationKind refines a relation into multi, lookup or single. declared is
// the cardinality the type or relation type asserted, if any. The plural-name
// fallback applies even when a single cardinality was declared.
func relationKind(f model.Field, declared relation) model.FieldKind {
	if declared == relMulti || pluralName(f) {
		return model.KindMultiRelation
	}
	if IsLookup(f) {
		return model.KindLookup
	}
	return model.KindSingleRelation
}

// IsLookup reports whether a relation's options come from the shared lookup
// catalog.
func IsLookup(f model.Field) bool {
	return f.RelatedModel == LookupModel || strings.Contains(f.LimitChoicesTo, "lookup")
}

// pluralName is the many-to-many fallback: a related model plus a name that
// ends in "s" and not in "_id". Singular names ending in "s" are misread as
// plural; this is kept as is.
func pluralName(f model.Field) bool {
	return f.RelatedModel != "" &&
		strings.HasSuffix(f.Name, "s") &&
		!strings.HasSuffix(f.Name, "_id")
}

// Fields returns a copy of fields with Kind assigned.
func Fields(fields []model.Field) []model.Field {
	out := make([]model.Field, len(fields))
	for i, f := range fields {
		f.Kind = Classify(f)
		out[i] = f
	}
	return out
}
