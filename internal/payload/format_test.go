package payload

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"reflect"
	"strings"
	"testing"

	"github.com/pitabwire/schemadmin/internal/classify"
	"github.com/pitabwire/schemadmin/model"
)

func productFields() []model.Field {
	return classify.Fields([]model.Field{
		{Name: "id", Type: "integer", ReadOnly: true},
		{Name: "name", Type: "CharField"},
		{Name: "price", Type: "decimal"},
		{Name: "stock", Type: "integer"},
		{Name: "active", Type: "boolean"},
		{Name: "released", Type: "date"},
		{Name: "published_at", Type: "datetime"},
		{Name: "opens", Type: "time"},
		{Name: "category_id", RelatedModel: "catalog.category"},
		{Name: "tags", RelatedModel: "catalog.tag"},
		{Name: "photo", Type: "ImageField"},
		{Name: "created", Type: "datetime", ReadOnly: true},
	})
}

func TestFormat_untouchedRelationWithoutBlobsIsJSON(t *testing.T) {
	values := map[string]any{
		"id":          5.0,
		"name":        "Chair",
		"category_id": 3.0,
		"photo":       nil,
	}
	files := map[string]*model.FileFieldState{
		"photo": {HasExistingFile: true, ExistingFileURL: "/media/chair.png", ExistingFileName: "chair.png"},
	}

	p := Format(values, productFields(), files)

	if p.Encoding != EncodingJSON {
		t.Fatalf("Encoding = %q, want json", p.Encoding)
	}
	if _, ok := p.Values["photo"]; ok {
		t.Error("unchanged file field must be absent")
	}
	if _, ok := p.Values["id"]; ok {
		t.Error("read-only field must be absent")
	}
	if p.Values["category_id"] != 3.0 {
		t.Errorf("category_id = %v, want 3", p.Values["category_id"])
	}
	if len(p.Values) != 2 {
		t.Errorf("Values = %v, want name and category_id only", p.Values)
	}
}

func TestFormat_multipartIffNewBlob(t *testing.T) {
	blob := &model.FileBlob{Name: "new.png", Data: []byte("\x89PNG\r\n\x1a\n")}
	cases := []struct {
		name  string
		files map[string]*model.FileFieldState
		want  Encoding
	}{
		{"no file state", nil, EncodingJSON},
		{"existing file only", map[string]*model.FileFieldState{"photo": {HasExistingFile: true}}, EncodingJSON},
		{"replace without blob", map[string]*model.FileFieldState{"photo": {ReplaceRequested: true}}, EncodingJSON},
		{"new blob", map[string]*model.FileFieldState{"photo": {NewFile: blob, ReplaceRequested: true}}, EncodingMultipart},
		{"blob on non-file field", map[string]*model.FileFieldState{"name": {NewFile: blob}}, EncodingJSON},
	}
	values := map[string]any{"name": "x", "active": true, "tags": []any{"1"}, "stock": 2.0}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Format(values, productFields(), tc.files)
			if p.Encoding != tc.want {
				t.Errorf("Encoding = %q, want %q", p.Encoding, tc.want)
			}
		})
	}
}

func TestFormat_replaceWithoutBlobSendsNull(t *testing.T) {
	files := map[string]*model.FileFieldState{"photo": {HasExistingFile: true, ReplaceRequested: true}}
	p := Format(map[string]any{}, productFields(), files)

	v, ok := p.Values["photo"]
	if !ok || v != nil {
		t.Errorf("photo = %v (present %v), want explicit null", v, ok)
	}
}

func TestFormat_coercion(t *testing.T) {
	values := map[string]any{
		"name":         "",
		"price":        "12.50",
		"stock":        0.0,
		"active":       "yes",
		"released":     "2024-02-30T00:00",
		"published_at": "2024-03-01T09:15",
		"opens":        "08:30",
		"tags":         []any{"4", 7.0, "x"},
		"created":      "2024-01-01 00:00:00",
		"unknown":      "dropped",
	}
	p := Format(values, productFields(), nil)

	want := map[string]any{
		"name":         nil,
		"price":        12.5,
		"stock":        0.0,
		"active":       true,
		"released":     nil,
		"published_at": "2024-03-01 09:15:00",
		"opens":        "08:30:00",
		"tags":         []any{4, 7.0, "x"},
	}
	if !reflect.DeepEqual(p.Values, want) {
		t.Errorf("Values =\n%#v\nwant\n%#v", p.Values, want)
	}
}

func TestCoerce_edgeCases(t *testing.T) {
	cases := []struct {
		kind model.FieldKind
		in   any
		want any
	}{
		{model.KindDate, "2024-01-05", "2024-01-05"},
		{model.KindDate, "05/01/2024", nil},
		{model.KindDateTime, "2024-01-05", nil},
		{model.KindDateTime, "2024-01-05 10:11:12", "2024-01-05 10:11:12"},
		{model.KindDateTime, "2024-01-05T10:11:12Z", "2024-01-05 10:11:12"},
		{model.KindDateTime, "2024-01-05Tnope", nil},
		{model.KindTime, "08:30:15", "08:30:15"},
		{model.KindTime, "8:30", "8:30"},
		{model.KindNumber, "abc", nil},
		{model.KindNumber, nil, nil},
		{model.KindBoolean, false, false},
		{model.KindBoolean, 0.0, false},
		{model.KindBoolean, "false", true},
		{model.KindText, 42.0, 42.0},
		{model.KindSingleRelation, "3", "3"},
	}
	for _, tc := range cases {
		if got := coerce(tc.kind, tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("coerce(%s, %#v) = %#v, want %#v", tc.kind, tc.in, got, tc.want)
		}
	}
}

func TestFormat_multipartOmitsNulls(t *testing.T) {
	blob := &model.FileBlob{Name: "a.txt", ContentType: "text/plain", Data: []byte("hello")}
	values := map[string]any{"name": "", "price": nil, "stock": 3.0}
	files := map[string]*model.FileFieldState{"photo": {NewFile: blob}}

	p := Format(values, productFields(), files)

	if p.Encoding != EncodingMultipart {
		t.Fatalf("Encoding = %q", p.Encoding)
	}
	if _, ok := p.Values["name"]; ok {
		t.Error("empty string should be omitted from multipart")
	}
	if _, ok := p.Values["price"]; ok {
		t.Error("null should be omitted from multipart")
	}
	if p.Files["photo"] != blob {
		t.Error("new blob not attached")
	}
}

func TestBody_JSON(t *testing.T) {
	p := Format(map[string]any{"name": "Chair", "price": ""}, productFields(), nil)
	data, ct, err := p.Body().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["name"] != "Chair" || got["price"] != nil {
		t.Errorf("body = %v", got)
	}
	if _, ok := got["price"]; !ok {
		t.Error("cleared field must be sent as null")
	}
}

func TestBody_multipart(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	p := Format(
		map[string]any{"name": "Chair", "tags": []any{"1", "2"}, "active": false},
		productFields(),
		map[string]*model.FileFieldState{"photo": {NewFile: &model.FileBlob{Name: "c.png", Data: png}}},
	)

	data, ct, err := p.Body().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("content type = %q (%v)", ct, err)
	}

	r := multipart.NewReader(strings.NewReader(string(data)), params["boundary"])
	fields := map[string][]string{}
	var fileType, fileName string
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		body, _ := io.ReadAll(part)
		if part.FileName() != "" {
			fileName = part.FileName()
			fileType = part.Header.Get("Content-Type")
			continue
		}
		fields[part.FormName()] = append(fields[part.FormName()], string(body))
	}

	want := map[string][]string{"name": {"Chair"}, "tags": {"1", "2"}, "active": {"false"}}
	if !reflect.DeepEqual(fields, want) {
		t.Errorf("fields = %v, want %v", fields, want)
	}
	if fileName != "c.png" {
		t.Errorf("file name = %q", fileName)
	}
	if fileType != "image/png" {
		t.Errorf("sniffed content type = %q, want image/png", fileType)
	}
}

func TestFormat_readOnlyNeverSent(t *testing.T) {
	fields := productFields()
	values := map[string]any{"id": 1.0, "created": "2024-01-01T00:00"}
	for _, files := range []map[string]*model.FileFieldState{
		nil,
		{"photo": {NewFile: &model.FileBlob{Name: "x", Data: []byte("x")}}},
	} {
		p := Format(values, fields, files)
		for _, name := range []string{"id", "created"} {
			if _, ok := p.Values[name]; ok {
				t.Errorf("%s encoding carried read-only %q", p.Encoding, name)
			}
		}
	}
}
