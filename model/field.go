package model

// FieldKind is the semantic classification of a field. It is computed once by
// the classifier when a resource is built and carried on the Field thereafter.
type FieldKind string

// Field kinds.
const (
	KindText           FieldKind = "text"
	KindNumber         FieldKind = "number"
	KindBoolean        FieldKind = "boolean"
	KindDate           FieldKind = "date"
	KindTime           FieldKind = "time"
	KindDateTime       FieldKind = "datetime"
	KindFile           FieldKind = "file"
	KindSingleRelation FieldKind = "single_relation"
	KindMultiRelation  FieldKind = "multi_relation"
	KindLookup         FieldKind = "lookup"
	KindChoice         FieldKind = "choice"
	KindUnhandled      FieldKind = "unhandled"
)

// IsRelation returns true for single, multi, and lookup relation kinds.
func (k FieldKind) IsRelation() bool {
	switch k {
	case KindSingleRelation, KindMultiRelation, KindLookup:
		return true
	}
	return false
}

// Resolvable returns true if the kind can be rendered and edited.
func (k FieldKind) Resolvable() bool {
	return k != "" && k != KindUnhandled
}

// Choice is a single value/label pair of a choice field.
type Choice struct {
	Value any    `json:"value"`
	Label string `json:"display_name"`
}

// Field describes one attribute of a resource as declared by the backend's
// endpoint metadata.
type Field struct {
	Name           string   `json:"name"`
	Type           string   `json:"type,omitempty"`
	Label          string   `json:"label,omitempty"`
	Required       bool     `json:"required"`
	ReadOnly       bool     `json:"read_only"`
	Default        any      `json:"default,omitempty"`
	HelpText       string   `json:"help_text,omitempty"`
	Choices        []Choice `json:"choices,omitempty"`
	RelationType   string   `json:"relation_type,omitempty"`
	RelatedModel   string   `json:"related_model,omitempty"`
	LimitChoicesTo string   `json:"limit_choices_to,omitempty"`

	// Kind is assigned by the classifier; it is never read from the wire.
	Kind FieldKind `json:"-"`
}

// HasChoices reports whether the field carries a fixed option list. Such
// fields render as a dropdown regardless of kind.
func (f Field) HasChoices() bool {
	return len(f.Choices) > 0
}

// AppModel splits RelatedModel ("app.model") into its two parts. A value
// without a dot yields an empty app.
func (f Field) AppModel() (app, model string) {
	for i := 0; i < len(f.RelatedModel); i++ {
		if f.RelatedModel[i] == '.' {
			return f.RelatedModel[:i], f.RelatedModel[i+1:]
		}
	}
	return "", f.RelatedModel
}

// DisplayLabel returns the declared label, falling back to the field name.
func (f Field) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}
