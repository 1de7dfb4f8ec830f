package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

type payload struct {
	Name  string `json:"name" msgpack:"name"`
	Count int    `json:"count" msgpack:"count"`
}

func TestDecodeJSONWithCharset(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Test","count":3}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	var p payload
	if err := DecodeRequestBody(httptest.NewRecorder(), req, &p); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if p.Name != "Test" || p.Count != 3 {
		t.Fatalf("Unexpected payload: %+v", p)
	}
}

func TestDecodeWithoutContentTypeIsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Test"}`))

	var p payload
	if err := DecodeRequestBody(httptest.NewRecorder(), req, &p); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if p.Name != "Test" {
		t.Fatalf("Unexpected payload: %+v", p)
	}
}

func TestDecodeMsgpack(t *testing.T) {
	data, err := msgpack.Marshal(payload{Name: "Packed", Count: 7})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	req.Header.Set("Content-Type", ContentTypeMsgPack)

	var p payload
	if err := DecodeRequestBody(httptest.NewRecorder(), req, &p); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if p.Name != "Packed" || p.Count != 7 {
		t.Fatalf("Unexpected payload: %+v", p)
	}
}

func TestDecodeErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := DecodeRequestBody(httptest.NewRecorder(), req, &payload{}); !errors.Is(err, ErrUnsupportedContentType) {
		t.Fatalf("Expected ErrUnsupportedContentType, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("invalid json"))
	if err := DecodeRequestBody(httptest.NewRecorder(), req, &payload{}); !errors.Is(err, ErrMalformedBody) {
		t.Fatalf("Expected ErrMalformedBody, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := DecodeRequestBody(httptest.NewRecorder(), req, &payload{}); !errors.Is(err, ErrMalformedBody) {
		t.Fatalf("Expected ErrMalformedBody for empty body, got %v", err)
	}

	big := `{"name":"` + strings.Repeat("x", MaxBodySize) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	if err := DecodeRequestBody(httptest.NewRecorder(), req, &payload{}); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("Expected ErrBodyTooLarge, got %v", err)
	}
}

func TestWriteResponseNegotiates(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if err := WriteResponse(http.StatusCreated, rec, req, payload{Name: "json"}); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rec.Code)
	}
	var p payload
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil || p.Name != "json" {
		t.Fatalf("Expected JSON body, got %+v (%v)", p, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", ContentTypeMsgPack)
	rec = httptest.NewRecorder()
	WriteResponse(http.StatusOK, rec, req, payload{Name: "packed"})
	if ct := rec.Header().Get("Content-Type"); ct != ContentTypeMsgPack {
		t.Fatalf("Expected msgpack content type, got '%s'", ct)
	}
	p = payload{}
	if err := msgpack.NewDecoder(rec.Body).Decode(&p); err != nil || p.Name != "packed" {
		t.Fatalf("Expected msgpack body, got %+v (%v)", p, err)
	}
}
