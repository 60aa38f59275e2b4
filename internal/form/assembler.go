// Package form assembles editable form models from normalized resources and
// optional existing records.
package form

import (
	"time"

	"github.com/pitabwire/schemadmin/model"
)

// Form modes.
const (
	ModeCreate = "create"
	ModeEdit   = "edit"
)

// RequiredMessage is reported for a required field without a value.
const RequiredMessage = "This field is required."

// Validator checks one field value. It returns a message when the value is
// invalid. file is the field's file state, nil for non-file fields.
type Validator struct {
	Name  string
	Check func(value any, file *model.FileFieldState) (message string, ok bool)
}

// Required is attached to every required field.
var Required = Validator{
	Name: "required",
	Check: func(value any, file *model.FileFieldState) (string, bool) {
		if file != nil {
			if file.HasNewFile() || (file.HasExistingFile && !file.ReplaceRequested) {
				return "", true
			}
			return RequiredMessage, false
		}
		if isBlank(value) {
			return RequiredMessage, false
		}
		return "", true
	},
}

// Field is one control of a form.
type Field struct {
	model.Field
	Validators []Validator
}

// Model is an assembled form: the editable fields, their initial values and
// the out-of-band state of file fields.
type Model struct {
	Resource   string
	RecordID   string
	Mode       string
	Fields     []Field
	Values     map[string]any
	FileStates map[string]*model.FileFieldState
}

// Options configures Assemble.
type Options struct {
	// RecordID identifies the edited record; informational only.
	RecordID string
	// Location is the zone datetime values are presented in. Defaults to
	// time.Local.
	Location *time.Location
}

// Assemble builds the form for res. A nil record means create mode. Read-only
// fields and fields without a name or a resolvable kind are excluded.
func Assemble(res *model.Resource, record map[string]any, opts Options) *Model {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	fm := &Model{
		Resource:   res.Name,
		RecordID:   opts.RecordID,
		Mode:       ModeCreate,
		Values:     make(map[string]any),
		FileStates: make(map[string]*model.FileFieldState),
	}
	editing := record != nil
	if editing {
		fm.Mode = ModeEdit
	}

	for _, f := range res.Fields {
		if f.ReadOnly || f.Name == "" || !f.Kind.Resolvable() {
			continue
		}

		ff := Field{Field: f}
		if f.Required {
			ff.Validators = append(ff.Validators, Required)
		}
		fm.Fields = append(fm.Fields, ff)

		if f.Kind == model.KindFile {
			if editing {
				fm.FileStates[f.Name] = FileState(record[f.Name])
			} else {
				fm.FileStates[f.Name] = &model.FileFieldState{}
			}
			fm.Values[f.Name] = nil
			continue
		}

		switch {
		case editing:
			if v := record[f.Name]; v != nil {
				fm.Values[f.Name] = editValue(f.Kind, v, loc)
			} else {
				fm.Values[f.Name] = nil
			}
		case f.Default != nil:
			fm.Values[f.Name] = f.Default
		default:
			fm.Values[f.Name] = zeroValue(f.Kind)
		}
	}
	return fm
}

// Field returns the form field with the given name.
func (m *Model) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate runs every field's validators against values and returns the
// messages by field name. A nil result means the values are valid. File
// fields are checked against the form's file states.
func (m *Model) Validate(values map[string]any) map[string][]string {
	var errs map[string][]string
	for _, f := range m.Fields {
		var file *model.FileFieldState
		if f.Kind == model.KindFile {
			file = m.FileStates[f.Name]
			if file == nil {
				file = &model.FileFieldState{}
			}
		}
		for _, v := range f.Validators {
			msg, ok := v.Check(values[f.Name], file)
			if ok {
				continue
			}
			if errs == nil {
				errs = make(map[string][]string)
			}
			errs[f.Name] = append(errs[f.Name], msg)
		}
	}
	return errs
}

// Descriptor renders the form for the presentation layer.
func (m *Model) Descriptor() model.FormDescriptor {
	desc := model.FormDescriptor{
		Resource:   m.Resource,
		Mode:       m.Mode,
		RecordID:   m.RecordID,
		Fields:     make([]model.FormFieldDescriptor, 0, len(m.Fields)),
		Values:     m.Values,
		FileStates: m.FileStates,
	}
	for _, f := range m.Fields {
		fd := model.FormFieldDescriptor{
			FieldDescriptor: FieldDescriptor(f.Field),
			Dropdown:        f.HasChoices() || f.Kind.IsRelation() || f.Kind == model.KindChoice,
		}
		for _, v := range f.Validators {
			fd.Validators = append(fd.Validators, v.Name)
		}
		desc.Fields = append(desc.Fields, fd)
	}
	return desc
}

// FieldDescriptor renders one classified field.
func FieldDescriptor(f model.Field) model.FieldDescriptor {
	return model.FieldDescriptor{
		Name:         f.Name,
		Label:        f.DisplayLabel(),
		Kind:         string(f.Kind),
		Required:     f.Required,
		ReadOnly:     f.ReadOnly,
		HelpText:     f.HelpText,
		Choices:      f.Choices,
		RelatedModel: f.RelatedModel,
	}
}

func isBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	}
	return false
}
