package integration

import (
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pitabwire/schemadmin/internal/config"
	"github.com/pitabwire/schemadmin/model"
)

func (h *TestHarness) openSession(t *testing.T, body map[string]any, headers ...string) model.SessionDescriptor {
	t.Helper()
	var snap model.SessionDescriptor
	h.AssertJSON(t, h.POST("/api/resources/role/sessions", body, headers...), http.StatusCreated, &snap)
	return snap
}

func TestEditFlow_loadEditSubmit(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend().On("GET", "/api/accounts/roles/5/").RespondWith(http.StatusOK, roleRecord())

	auth := []string{"Authorization", "Token secret-1", "X-Correlation-Id", "corr-42"}
	snap := h.openSession(t, map[string]any{"record_id": "5", "load_fresh_data": true}, auth...)
	if snap.State != "ready" || snap.CurrentData["name"] != "Admins" {
		t.Fatalf("opened session = %+v", snap)
	}

	var edited model.SessionDescriptor
	h.AssertJSON(t, h.PATCH("/api/sessions/"+snap.ID, map[string]any{"values": map[string]any{"name": "Operators"}}), http.StatusOK, &edited)
	if !edited.HasChanges || !edited.FieldChanges["name"] {
		t.Fatalf("after edit = %+v", edited)
	}

	saved := roleRecord()
	saved["name"] = "Operators"
	h.Backend().On("PATCH", "/api/accounts/roles/5/").RespondWith(http.StatusOK, saved)

	var resp model.SubmitResponse
	h.AssertJSON(t, h.POST("/api/sessions/"+snap.ID+"/submit", map[string]any{}, auth...), http.StatusOK, &resp)
	if resp.Encoding != "json" || resp.Record["name"] != "Operators" {
		t.Errorf("submit response = %+v", resp)
	}

	sent := h.Backend().LastRequest("PATCH", "/api/accounts/roles/5/")
	body := sent.JSON(t)
	if len(body) != 1 || body["name"] != "Operators" {
		t.Errorf("PATCH body = %v, want only the changed name", body)
	}
	if got := sent.Headers.Get("Authorization"); got != "Token secret-1" {
		t.Errorf("Authorization = %q, want the caller's token", got)
	}
	if got := sent.Headers.Get("X-Correlation-Id"); got != "corr-42" {
		t.Errorf("X-Correlation-Id = %q, want corr-42", got)
	}

	var after model.SessionDescriptor
	h.AssertJSON(t, h.GET("/api/sessions/"+snap.ID), http.StatusOK, &after)
	if after.HasChanges {
		t.Errorf("session should be clean after submit: %+v", after)
	}
}

func TestEditFlow_createPostsToListEndpoint(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend().On("POST", "/api/accounts/roles/").RespondWith(http.StatusCreated, map[string]any{"id": 9, "name": "Auditors", "active": true})

	snap := h.openSession(t, map[string]any{})
	h.AssertJSON(t, h.PATCH("/api/sessions/"+snap.ID, map[string]any{"values": map[string]any{"name": "Auditors"}}), http.StatusOK, nil)

	var resp model.SubmitResponse
	h.AssertJSON(t, h.POST("/api/sessions/"+snap.ID+"/submit", nil), http.StatusOK, &resp)
	if resp.Record["id"] != float64(9) {
		t.Errorf("created record = %v", resp.Record)
	}
	if body := h.Backend().LastRequest("POST", "/api/accounts/roles/").JSON(t); body["name"] != "Auditors" {
		t.Errorf("POST body = %v", body)
	}
}

func TestEditFlow_fileUploadIsMultipartOnTheWire(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend().On("GET", "/api/accounts/roles/5/").RespondWith(http.StatusOK, roleRecord())
	h.Backend().On("PATCH", "/api/accounts/roles/5/").RespondWith(http.StatusOK, roleRecord())

	snap := h.openSession(t, map[string]any{"record_id": "5", "load_fresh_data": true})
	h.AssertJSON(t, h.PATCH("/api/sessions/"+snap.ID, map[string]any{"values": map[string]any{"name": "Designers"}}), http.StatusOK, nil)

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")
	var resp model.SubmitResponse
	h.AssertJSON(t, h.POST("/api/sessions/"+snap.ID+"/submit", map[string]any{
		"files": map[string]any{
			"icon": map[string]any{"name": "designers.png", "data": base64.StdEncoding.EncodeToString(png)},
		},
	}), http.StatusOK, &resp)
	if resp.Encoding != "multipart" {
		t.Fatalf("encoding = %q, want multipart", resp.Encoding)
	}

	sent := h.Backend().LastRequest("PATCH", "/api/accounts/roles/5/")
	mediaType, params, err := mime.ParseMediaType(sent.ContentType)
	if err != nil || mediaType != "multipart/form-data" {
		t.Fatalf("content type = %q (%v)", sent.ContentType, err)
	}
	reader := multipart.NewReader(strings.NewReader(string(sent.RawBody)), params["boundary"])
	parts := map[string]string{}
	var fileType string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read part: %v", err)
		}
		data, _ := io.ReadAll(part)
		if part.FileName() != "" {
			fileType = part.Header.Get("Content-Type")
			parts[part.FormName()] = part.FileName()
			continue
		}
		parts[part.FormName()] = string(data)
	}
	if parts["name"] != "Designers" {
		t.Errorf("name part = %q", parts["name"])
	}
	if parts["icon"] != "designers.png" {
		t.Errorf("icon part filename = %q", parts["icon"])
	}
	if fileType != "image/png" {
		t.Errorf("icon content type = %q, want sniffed image/png", fileType)
	}
}

func TestEditFlow_backendValidationErrors(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend().On("GET", "/api/accounts/roles/5/").RespondWith(http.StatusOK, roleRecord())
	h.Backend().On("PATCH", "/api/accounts/roles/5/").RespondWith(http.StatusBadRequest, map[string]any{
		"name": []any{"role with this name already exists."},
	})

	snap := h.openSession(t, map[string]any{"record_id": "5", "load_fresh_data": true})
	h.AssertJSON(t, h.PATCH("/api/sessions/"+snap.ID, map[string]any{"values": map[string]any{"name": "Owners"}}), http.StatusOK, nil)

	resp := h.POST("/api/sessions/"+snap.ID+"/submit", nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if code := h.ErrorCode(t, resp); code != model.ErrValidationError {
		t.Errorf("code = %q, want VALIDATION_ERROR", code)
	}

	var after model.SessionDescriptor
	h.AssertJSON(t, h.GET("/api/sessions/"+snap.ID), http.StatusOK, &after)
	if !after.HasChanges || after.CurrentData["name"] != "Owners" {
		t.Errorf("edits should survive a rejected submit: %+v", after)
	}
}

func TestEditFlow_autoSave(t *testing.T) {
	h := NewTestHarness(t, WithConfig(func(cfg *config.Config) {
		cfg.Session.AutoSave = true
		cfg.Session.AutoSaveDelay = 10 * time.Millisecond
	}))
	h.Backend().On("GET", "/api/accounts/roles/5/").RespondWith(http.StatusOK, roleRecord())
	h.Backend().On("PATCH", "/api/accounts/roles/5/").RespondWith(http.StatusOK, roleRecord())

	snap := h.openSession(t, map[string]any{"record_id": "5", "load_fresh_data": true})
	h.AssertJSON(t, h.PATCH("/api/sessions/"+snap.ID, map[string]any{"values": map[string]any{"name": "Editors"}}), http.StatusOK, nil)

	deadline := time.Now().Add(2 * time.Second)
	for len(h.Backend().Requests("PATCH", "/api/accounts/roles/5/")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("auto-save never reached the backend")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if body := h.Backend().LastRequest("PATCH", "/api/accounts/roles/5/").JSON(t); body["name"] != "Editors" {
		t.Errorf("auto-saved body = %v", body)
	}
}

func TestEditFlow_deleteRecord(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend().On("DELETE", "/api/accounts/roles/5/").RespondWith(http.StatusNoContent, nil)

	resp := h.Do(http.MethodDelete, "/api/resources/role/records/5", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if n := len(h.Backend().Requests("DELETE", "/api/accounts/roles/5/")); n != 1 {
		t.Errorf("backend DELETE calls = %d, want 1", n)
	}
}
