// Package testhelpers provides reusable testing utilities for Pulsewatch.
//
// This package contains:
// - HTTP test helpers (building and executing test requests)
// - A mock notification sender
// - Sample data builders
// - Assertion helpers
package testhelpers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// ========================================
// HTTP Test Helpers
// ========================================

// HTTPTestContext holds components for HTTP handler testing
type HTTPTestContext struct {
	T        *testing.T
	Recorder *httptest.ResponseRecorder
	Request  *http.Request
}

// NewHTTPTestContext creates a new HTTP test context
func NewHTTPTestContext(t *testing.T, method, path string, body io.Reader) *HTTPTestContext {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	return &HTTPTestContext{
		T:        t,
		Recorder: httptest.NewRecorder(),
		Request:  req,
	}
}

// WithJSONBody sets JSON body on the request
func (ctx *HTTPTestContext) WithJSONBody(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	body, err := json.Marshal(v)
	if err != nil {
		ctx.T.Fatalf("failed to marshal JSON body: %v", err)
	}
	ctx.Request = httptest.NewRequest(ctx.Request.Method, ctx.Request.URL.String(), bytes.NewReader(body))
	ctx.Request.Header.Set("Content-Type", "application/json")
	return ctx
}

// Execute runs the handler and returns the response
func (ctx *HTTPTestContext) Execute(handler http.Handler) *HTTPTestContext {
	handler.ServeHTTP(ctx.Recorder, ctx.Request)
	return ctx
}

// AssertStatus checks the response status code
func (ctx *HTTPTestContext) AssertStatus(expected int) *HTTPTestContext {
	ctx.T.Helper()
	if ctx.Recorder.Code != expected {
		ctx.T.Errorf("expected status %d, got %d. Body: %s", expected, ctx.Recorder.Code, ctx.Recorder.Body.String())
	}
	return ctx
}

// AssertBodyContains checks if response body contains substring
func (ctx *HTTPTestContext) AssertBodyContains(substr string) *HTTPTestContext {
	ctx.T.Helper()
	body := ctx.Recorder.Body.String()
	if !strings.Contains(body, substr) {
		ctx.T.Errorf("expected body to contain %q, got: %s", substr, body)
	}
	return ctx
}

// DecodeJSON decodes response body as JSON
func (ctx *HTTPTestContext) DecodeJSON(v interface{}) *HTTPTestContext {
	ctx.T.Helper()
	if err := json.NewDecoder(ctx.Recorder.Body).Decode(v); err != nil {
		ctx.T.Fatalf("failed to decode JSON response: %v", err)
	}
	return ctx
}

// ========================================
// Mock Notification Sender
// ========================================

// SendRecord captures one dispatched notification
type SendRecord struct {
	Channel  string
	Target   string
	Title    string
	Body     string
	Severity int
}

// MockSender implements the notify.Sender interface for testing
type MockSender struct {
	mu     sync.Mutex
	Result bool
	Sends  []SendRecord
}

// NewMockSender creates a mock sender whose sends succeed
func NewMockSender() *MockSender {
	return &MockSender{Result: true}
}

// Send records the notification and returns the configured result
func (m *MockSender) Send(ctx context.Context, channel, target, title, body string, severity int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sends = append(m.Sends, SendRecord{
		Channel:  channel,
		Target:   target,
		Title:    title,
		Body:     body,
		Severity: severity,
	})
	return m.Result
}

// SendCount returns the number of recorded sends
func (m *MockSender) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sends)
}

// LastSend returns the most recent send, or nil
func (m *MockSender) LastSend() *SendRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sends) == 0 {
		return nil
	}
	last := m.Sends[len(m.Sends)-1]
	return &last
}

// Reset clears the recorded sends
func (m *MockSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sends = nil
}

// ========================================
// Sample Data Builders
// ========================================

// AlertBuilder builds Alert instances for testing
type AlertBuilder struct {
	alert database.Alert
}

// NewAlertBuilder creates a new alert builder with defaults
func NewAlertBuilder() *AlertBuilder {
	return &AlertBuilder{
		alert: database.Alert{
			Fingerprint: "abcdef0123456789",
			Title:       "Test alert",
			Message:     "Test alert message",
			Severity:    3,
			Source:      "test",
			Status:      database.AlertStatusOpen,
			CreatedAt:   time.Now(),
		},
	}
}

// WithFingerprint sets the fingerprint
func (b *AlertBuilder) WithFingerprint(fp string) *AlertBuilder {
	b.alert.Fingerprint = fp
	return b
}

// WithTitle sets the title
func (b *AlertBuilder) WithTitle(title string) *AlertBuilder {
	b.alert.Title = title
	return b
}

// WithSeverity sets the severity
func (b *AlertBuilder) WithSeverity(severity int) *AlertBuilder {
	b.alert.Severity = severity
	return b
}

// WithStatus sets the status
func (b *AlertBuilder) WithStatus(status database.AlertStatus) *AlertBuilder {
	b.alert.Status = status
	return b
}

// WithLevel sets the escalation level
func (b *AlertBuilder) WithLevel(level int) *AlertBuilder {
	b.alert.EscalationLevel = level
	return b
}

// WithNextEscalationAt sets the next escalation time
func (b *AlertBuilder) WithNextEscalationAt(at time.Time) *AlertBuilder {
	b.alert.NextEscalationAt = &at
	return b
}

// WithCreatedAt sets the creation time
func (b *AlertBuilder) WithCreatedAt(at time.Time) *AlertBuilder {
	b.alert.CreatedAt = at
	return b
}

// Build returns the constructed alert
func (b *AlertBuilder) Build() database.Alert {
	return b.alert
}

// ========================================
// Assertion Helpers
// ========================================

// AssertEqual checks equality with a helpful error message
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertNoError checks that no error occurred
func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", msg, err)
	}
}

// AssertError checks that an error occurred
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected error, got nil", msg)
	}
}
