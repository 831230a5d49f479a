package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondJSON(rec, 201, map[string]string{"status": "created"})

	if rec.Code != 201 {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body["status"] != "created" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, 404, "not found")

	var body ErrorResponse
	json.NewDecoder(rec.Body).Decode(&body)
	if rec.Code != 404 || body.Error != "not found" {
		t.Errorf("unexpected response: code=%d body=%+v", rec.Code, body)
	}
}

func TestRespondValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondValidationError(rec, map[string]string{"title": "is required"})

	if rec.Code != 422 {
		t.Errorf("expected 422, got %d", rec.Code)
	}
	var body ErrorResponse
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Code != "validation_error" || body.Details["title"] != "is required" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	var p payload
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"test"}`))
	if err := DecodeJSON(req, &p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "test" {
		t.Errorf("expected name=test, got %q", p.Name)
	}

	// Malformed JSON.
	req = httptest.NewRequest("POST", "/", strings.NewReader(`{broken`))
	if err := DecodeJSON(req, &p); err == nil {
		t.Error("expected error for malformed JSON")
	}

	// Empty body.
	req = httptest.NewRequest("POST", "/", strings.NewReader(""))
	if err := DecodeJSON(req, &p); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Errorf("expected empty body error, got %v", err)
	}

	// Unknown fields are rejected.
	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"x","extra":1}`))
	if err := DecodeJSON(req, &p); err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Errorf("expected unknown field error, got %v", err)
	}

	// Wrong type for a field.
	req = httptest.NewRequest("POST", "/", strings.NewReader(`{"name":42}`))
	if err := DecodeJSON(req, &p); err == nil || !strings.Contains(err.Error(), "name") {
		t.Errorf("expected type error naming the field, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	type form struct {
		Title    string `validate:"required,max=10"`
		Severity int    `validate:"min=1,max=5"`
		Channel  string `validate:"omitempty,oneof=push email"`
	}

	if errs := Validate(form{Title: "ok", Severity: 3}); errs != nil {
		t.Errorf("expected no errors, got %v", errs)
	}

	errs := Validate(form{Severity: 9, Channel: "fax"})
	if errs == nil {
		t.Fatal("expected validation errors")
	}
	if errs["title"] != "is required" {
		t.Errorf("unexpected title error: %q", errs["title"])
	}
	if !strings.Contains(errs["severity"], "at most 5") {
		t.Errorf("unexpected severity error: %q", errs["severity"])
	}
	if !strings.Contains(errs["channel"], "one of") {
		t.Errorf("unexpected channel error: %q", errs["channel"])
	}
}

func TestToSnakeCase(t *testing.T) {
	cases := map[string]string{
		"Title":        "title",
		"DelayMinutes": "delay_minutes",
		"SMTPHost":     "s_m_t_p_host",
		"a":            "a",
	}
	for in, want := range cases {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q): expected %q, got %q", in, want, got)
		}
	}
}
