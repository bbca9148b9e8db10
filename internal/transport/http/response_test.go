package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mallquest/mallquest/internal/domain"
)

func TestWriteSuccessEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeSuccess(w, http.StatusCreated, map[string]string{"id": "abc"})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var got APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !got.Success || got.Error != nil {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestWriteErrorMapsKindToStatus(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, domain.ErrUserNotFound)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}

	var got APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Success {
		t.Fatal("error response must have success=false")
	}
	if got.Error == nil || got.Error.Code != "not_found" {
		t.Fatalf("unexpected error body: %+v", got.Error)
	}
}

func TestDecodeJSONRejectsNilBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Body = nil
	var dst struct{}
	if err := decodeJSON(r, &dst); err == nil {
		t.Fatal("expected error decoding a nil body")
	}
}

func TestDecodeJSONRejectsMalformedBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{not json"))
	var dst struct{}
	if err := decodeJSON(r, &dst); err == nil {
		t.Fatal("expected error decoding malformed JSON")
	}
}

func TestDecodeJSONSucceeds(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"arwa"}`))
	var dst struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &dst); err != nil {
		t.Fatalf("decodeJSON: %v", err)
	}
	if dst.Name != "arwa" {
		t.Fatalf("decoded Name = %q, want arwa", dst.Name)
	}
}
