package model

// RelationOption is one selectable entry of a relation field. ID is the
// opaquely-typed primary key as returned by the backend.
type RelationOption struct {
	ID      any    `json:"id"`
	Display string `json:"display"`
}

// FileBlob is new file content staged for upload.
type FileBlob struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"-"`
}

// FileFieldState tracks the out-of-band state of one file-kind field while a
// record is being edited.
type FileFieldState struct {
	HasExistingFile  bool      `json:"has_existing_file"`
	ExistingFileURL  string    `json:"existing_file_url,omitempty"`
	ExistingFileName string    `json:"existing_file_name,omitempty"`
	NewFile          *FileBlob `json:"new_file,omitempty"`
	ReplaceRequested bool      `json:"replace_requested"`
}

// HasNewFile reports whether a new blob is staged.
func (s *FileFieldState) HasNewFile() bool {
	return s != nil && s.NewFile != nil
}

// Effective returns the value to submit for the field. When include is false
// the field is unchanged and must be omitted. A requested replacement without
// a new blob yields a nil value.
func (s *FileFieldState) Effective() (value any, include bool) {
	switch {
	case s == nil:
		return nil, false
	case s.NewFile != nil:
		return s.NewFile, true
	case s.ReplaceRequested:
		return nil, true
	default:
		return nil, false
	}
}
