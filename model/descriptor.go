package model

// ResourceDescriptor is the resource summary sent to the presentation layer.
type ResourceDescriptor struct {
	Name           string            `json:"name"`
	App            string            `json:"app,omitempty"`
	ListEndpoint   string            `json:"list_endpoint,omitempty"`
	DetailEndpoint string            `json:"detail_endpoint,omitempty"`
	Capabilities   []string          `json:"capabilities"`
	Fields         []FieldDescriptor `json:"fields,omitempty"`
}

// FieldDescriptor is a classified field sent to the presentation layer.
type FieldDescriptor struct {
	Name         string   `json:"name"`
	Label        string   `json:"label"`
	Kind         string   `json:"kind"`
	Required     bool     `json:"required"`
	ReadOnly     bool     `json:"read_only"`
	HelpText     string   `json:"help_text,omitempty"`
	Choices      []Choice `json:"choices,omitempty"`
	RelatedModel string   `json:"related_model,omitempty"`
}

// FormDescriptor is the assembled form sent to the presentation layer.
type FormDescriptor struct {
	Resource   string                     `json:"resource"`
	Mode       string                     `json:"mode"`
	RecordID   string                     `json:"record_id,omitempty"`
	Fields     []FormFieldDescriptor      `json:"fields"`
	Values     map[string]any             `json:"values"`
	FileStates map[string]*FileFieldState `json:"file_states,omitempty"`
}

// FormFieldDescriptor is one editable control of a form.
type FormFieldDescriptor struct {
	FieldDescriptor
	Dropdown   bool     `json:"dropdown"`
	Validators []string `json:"validators,omitempty"`
}

// SessionDescriptor is the externally visible state of an edit session.
type SessionDescriptor struct {
	ID           string          `json:"id"`
	Resource     string          `json:"resource"`
	RecordID     string          `json:"record_id,omitempty"`
	State        string          `json:"state"`
	IsEditing    bool            `json:"is_editing"`
	HasChanges   bool            `json:"has_changes"`
	FieldChanges map[string]bool `json:"field_changes"`
	CurrentData  map[string]any  `json:"current_data"`
	Loading      bool            `json:"loading"`
	Error        string          `json:"error,omitempty"`
}

// OptionsResponse is the response of a relation-options request.
type OptionsResponse struct {
	Field    string           `json:"field"`
	Options  []RelationOption `json:"options"`
	Source   string           `json:"source"`
	Endpoint string           `json:"endpoint,omitempty"`
	Warning  string           `json:"warning,omitempty"`
}

// SubmitResponse is the response of a successful submission.
type SubmitResponse struct {
	Encoding string         `json:"encoding"`
	Record   map[string]any `json:"record,omitempty"`
}

// ListResponse is the response of a record list load.
type ListResponse struct {
	Items []map[string]any `json:"items"`
	Count int              `json:"count"`
}
