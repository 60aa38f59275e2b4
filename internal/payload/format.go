// Package payload turns edit-session values into outgoing request bodies.
package payload

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pitabwire/schemadmin/internal/classify"
	"github.com/pitabwire/schemadmin/internal/form"
	"github.com/pitabwire/schemadmin/model"
)

// Encoding is the wire encoding chosen for a payload.
type Encoding string

// Payload encodings.
const (
	EncodingJSON      Encoding = "json"
	EncodingMultipart Encoding = "multipart"
)

const canonicalDateTime = "2006-01-02 15:04:05"

var (
	datePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	shortTimePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// dateTimeInputs are the accepted datetime inputs. Each carries a T or
// space between date and time.
var dateTimeInputs = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Payload is a formatted request body. Values holds the coerced scalar
// values; Files holds the new blobs of file fields. Files is non-empty only
// for multipart payloads.
type Payload struct {
	Encoding Encoding
	Values   map[string]any
	Files    map[string]*model.FileBlob
}

// EncodingFor returns multipart when some writable file field holds a new
// blob, and JSON otherwise.
func EncodingFor(fields []model.Field, files map[string]*model.FileFieldState) Encoding {
	for _, f := range fields {
		if kindOf(f) == model.KindFile && !f.ReadOnly && files[f.Name].HasNewFile() {
			return EncodingMultipart
		}
	}
	return EncodingJSON
}

// Format builds the payload for values, restricted to the writable fields
// declared in fields. Keys absent from values are not sent. files carries
// the per-field file state; a file field is sent only when it has a new blob,
// or as null in a JSON payload when a replacement was requested without one.
func Format(values map[string]any, fields []model.Field, files map[string]*model.FileFieldState) Payload {
	p := Payload{
		Encoding: EncodingFor(fields, files),
		Values:   make(map[string]any),
	}
	if p.Encoding == EncodingMultipart {
		p.Files = make(map[string]*model.FileBlob)
	}

	for _, f := range fields {
		if f.ReadOnly || f.Name == "" {
			continue
		}
		kind := kindOf(f)

		if kind == model.KindFile {
			v, include := files[f.Name].Effective()
			if !include {
				continue
			}
			if blob, ok := v.(*model.FileBlob); ok {
				p.Files[f.Name] = blob
			} else if p.Encoding == EncodingJSON {
				p.Values[f.Name] = nil
			}
			continue
		}

		raw, present := values[f.Name]
		if !present {
			continue
		}
		v := coerce(kind, raw)
		if v == nil && p.Encoding == EncodingMultipart {
			continue
		}
		p.Values[f.Name] = v
	}
	return p
}

// Body returns the encoder for the payload.
func (p Payload) Body() model.Body {
	if p.Encoding == EncodingMultipart {
		return &MultipartBody{Values: p.Values, Files: p.Files}
	}
	return &JSONBody{Values: p.Values}
}

func kindOf(f model.Field) model.FieldKind {
	if f.Kind != "" {
		return f.Kind
	}
	return classify.Classify(f)
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func coerce(kind model.FieldKind, v any) any {
	if blank(v) {
		return nil
	}
	switch kind {
	case model.KindDate:
		return coerceDate(v)
	case model.KindDateTime:
		return coerceDateTime(v)
	case model.KindTime:
		return coerceTime(v)
	case model.KindNumber:
		return form.ParseNumber(v)
	case model.KindBoolean:
		return Truthy(v)
	case model.KindMultiRelation:
		return coerceIDs(v)
	}
	return v
}

func coerceDate(v any) any {
	switch d := v.(type) {
	case string:
		if datePattern.MatchString(d) {
			return d
		}
	case time.Time:
		return d.Format("2006-01-02")
	}
	return nil
}

func coerceDateTime(v any) any {
	switch d := v.(type) {
	case string:
		if !strings.ContainsAny(d, "T ") {
			return nil
		}
		for _, layout := range dateTimeInputs {
			if t, err := time.Parse(layout, d); err == nil {
				return t.Format(canonicalDateTime)
			}
		}
	case time.Time:
		return d.Format(canonicalDateTime)
	}
	return nil
}

func coerceTime(v any) any {
	if s, ok := v.(string); ok && shortTimePattern.MatchString(s) {
		return s + ":00"
	}
	return v
}

func coerceIDs(v any) any {
	switch ids := v.(type) {
	case []any:
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = parseID(id)
		}
		return out
	case []string:
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = parseID(id)
		}
		return out
	}
	return v
}

func parseID(id any) any {
	s, ok := id.(string)
	if !ok {
		return id
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return s
	}
	return n
}

// Truthy reports the loose truth value of v: false, zero numbers, NaN, the
// empty string and nil are false; everything else, including the string
// "false", is true.
func Truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	case float64:
		return b != 0 && !math.IsNaN(b)
	case float32:
		return b != 0 && !math.IsNaN(float64(b))
	case int:
		return b != 0
	case int64:
		return b != 0
	case int32:
		return b != 0
	case json.Number:
		f, err := b.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	}
	return true
}
