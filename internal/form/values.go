package form

import (
	"encoding/json"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pitabwire/schemadmin/model"
)

// Editing widget formats.
const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02T15:04"
	timeLayout     = "15:04"
)

// datetimeInputs are accepted datetime representations, most specific first.
var datetimeInputs = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var timeInputs = []string{"15:04:05.999999999", "15:04:05", "15:04"}

// editValue transforms a non-nil record value into the value an editing
// widget expects. Values that cannot be transformed become nil.
func editValue(kind model.FieldKind, v any, loc *time.Location) any {
	switch kind {
	case model.KindDate:
		return formatDate(v, loc)
	case model.KindDateTime:
		return formatDateTime(v, loc)
	case model.KindTime:
		return formatTime(v)
	case model.KindBoolean:
		return StrictBool(v)
	case model.KindNumber:
		return ParseNumber(v)
	case model.KindFile:
		return nil
	case model.KindSingleRelation, model.KindLookup:
		return relationID(v)
	case model.KindMultiRelation:
		return relationIDs(v)
	}
	return v
}

// zeroValue is the create-mode value of a field without a default.
func zeroValue(kind model.FieldKind) any {
	if kind == model.KindBoolean {
		return false
	}
	return nil
}

func formatDate(v any, loc *time.Location) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.Format(dateLayout)
	}
	if t, ok := parseDateTime(s, loc); ok {
		return t.Format(dateLayout)
	}
	return nil
}

func formatDateTime(v any, loc *time.Location) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	t, ok := parseDateTime(strings.TrimSpace(s), loc)
	if !ok {
		return nil
	}
	return t.Format(datetimeLayout)
}

// parseDateTime reads s in any accepted layout. Zoned values are converted
// to loc; zoneless values are read as loc-local.
func parseDateTime(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range datetimeInputs {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), true
		}
	}
	return time.Time{}, false
}

func formatTime(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	for _, layout := range timeInputs {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.Format(timeLayout)
		}
	}
	return nil
}

// StrictBool is true only for the boolean true or the string "true".
func StrictBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

// ParseNumber returns v as a float64, or nil when it is not numeric.
func ParseNumber(v any) any {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return nil
}

// relationID reduces a nested related object to its primary key.
func relationID(v any) any {
	if m, ok := v.(map[string]any); ok {
		if id, ok := m["id"]; ok {
			return id
		}
		return m["pk"]
	}
	return v
}

func relationIDs(v any) any {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	ids := make([]any, 0, len(arr))
	for _, el := range arr {
		if id := relationID(el); id != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// FileState describes an existing file from the record's URL value.
func FileState(v any) *model.FileFieldState {
	s, _ := v.(string)
	if s == "" {
		return &model.FileFieldState{}
	}
	name := s
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	return &model.FileFieldState{
		HasExistingFile:  true,
		ExistingFileURL:  s,
		ExistingFileName: name,
	}
}
