package records

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/pitabwire/schemadmin/model"
)

// nonFieldKeys are backend error keys that do not name a form field.
var nonFieldKeys = map[string]bool{
	"non_field_errors": true,
	"detail":           true,
}

// backendError maps a non-2xx backend response onto an error envelope.
func backendError(res model.CallResult, what string) *model.ErrorEnvelope {
	switch res.StatusCode {
	case http.StatusBadRequest:
		return model.NewValidationError(validationDetails(res.Body))
	case http.StatusRequestEntityTooLarge:
		return model.NewPayloadTooLargeError()
	case http.StatusUnsupportedMediaType:
		return model.NewUnsupportedMediaTypeError()
	case http.StatusNotFound:
		return model.NewNotFoundError(what + " not found")
	}
	return model.NewFetchFailedError(fmt.Sprintf("%s: backend returned status %d", what, res.StatusCode))
}

// validationDetails parses a {field: message | [messages]} body. Messages
// under non_field_errors or detail, and bodies of any other shape, are
// attached to model.NonFieldErrorKey.
func validationDetails(body any) []model.FieldError {
	m, ok := body.(map[string]any)
	if !ok {
		msgs := messages(body)
		if len(msgs) == 0 {
			msgs = []string{"The submitted data is invalid."}
		}
		return fieldErrors(model.NonFieldErrorKey, msgs)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []model.FieldError
	for _, k := range keys {
		field := k
		if nonFieldKeys[k] {
			field = model.NonFieldErrorKey
		}
		out = append(out, fieldErrors(field, messages(m[k]))...)
	}
	return out
}

func fieldErrors(field string, msgs []string) []model.FieldError {
	out := make([]model.FieldError, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, model.FieldError{Field: field, Code: "invalid", Message: msg})
	}
	return out
}

func messages(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, e := range t {
			out = append(out, messages(e)...)
		}
		return out
	}
	data, err := json.Marshal(v)
	if err != nil {
		return []string{fmt.Sprint(v)}
	}
	return []string{string(data)}
}
