package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pitabwire/schemadmin/model"
)

// JSONBody encodes values as an application/json object.
type JSONBody struct {
	Values map[string]any
}

// Encode implements model.Body.
func (b *JSONBody) Encode() ([]byte, string, error) {
	values := b.Values
	if values == nil {
		values = map[string]any{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, "", fmt.Errorf("encoding json payload: %w", err)
	}
	return data, "application/json", nil
}

// MultipartBody encodes values and file blobs as multipart/form-data. Parts
// are written in key order; array values repeat their key once per element.
type MultipartBody struct {
	Values   map[string]any
	Files    map[string]*model.FileBlob
	boundary string
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Encode implements model.Body.
func (b *MultipartBody) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if b.boundary != "" {
		if err := w.SetBoundary(b.boundary); err != nil {
			return nil, "", fmt.Errorf("setting boundary: %w", err)
		}
	}

	for _, name := range sortedKeys(b.Values) {
		for _, s := range partValues(b.Values[name]) {
			if err := w.WriteField(name, s); err != nil {
				return nil, "", fmt.Errorf("writing field %q: %w", name, err)
			}
		}
	}

	for _, name := range sortedKeys(b.Files) {
		blob := b.Files[name]
		if blob == nil {
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(name), quoteEscaper.Replace(blob.Name)))
		h.Set("Content-Type", contentType(blob))
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("creating file part %q: %w", name, err)
		}
		if _, err := part.Write(blob.Data); err != nil {
			return nil, "", fmt.Errorf("writing file part %q: %w", name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func contentType(blob *model.FileBlob) string {
	if blob.ContentType != "" {
		return blob.ContentType
	}
	return mimetype.Detect(blob.Data).String()
}

func partValues(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case bool:
		return []string{strconv.FormatBool(t)}
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	case int:
		return []string{strconv.Itoa(t)}
	case int64:
		return []string{strconv.FormatInt(t, 10)}
	case json.Number:
		return []string{t.String()}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, partValues(e)...)
		}
		return out
	}
	data, err := json.Marshal(v)
	if err != nil {
		return []string{fmt.Sprint(v)}
	}
	return []string{string(data)}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
