package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp["error"]
}

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}
	if msg := decodeError(t, rec); msg != "test error" {
		t.Errorf("error = %s, want 'test error'", msg)
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, []int{1, 2, 3})

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != "[1,2,3]\n" {
		t.Errorf("body = %q", body)
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"bad", func(w http.ResponseWriter) { BadRequest(w, "bad limit") }, http.StatusBadRequest, "bad limit"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "db down") }, http.StatusInternalServerError, "db down"},
		{"missing", func(w http.ResponseWriter) { NotFound(w, "no session") }, http.StatusNotFound, "no session"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		tt.write(rec)
		if rec.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.status)
		}
		if msg := decodeError(t, rec); msg != tt.msg {
			t.Errorf("%s: error = %q, want %q", tt.name, msg, tt.msg)
		}
	}
}

func TestQueryInt(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/x?limit=25&bad=-1&word=ten", nil)
	if v, err := QueryInt(req, "limit", 100); err != nil || v != 25 {
		t.Errorf("QueryInt(limit) = %d, %v", v, err)
	}
	if v, err := QueryInt(req, "absent", 100); err != nil || v != 100 {
		t.Errorf("QueryInt(absent) = %d, %v", v, err)
	}
	if _, err := QueryInt(req, "bad", 0); err == nil {
		t.Error("QueryInt(-1) expected error")
	}
	if _, err := QueryInt(req, "word", 0); err == nil {
		t.Error("QueryInt(ten) expected error")
	}
}

func TestQueryDuration(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/x?warmup=2500ms&neg=-1s&junk=soon", nil)
	if d, err := QueryDuration(req, "warmup", 5*time.Second); err != nil || d != 2500*time.Millisecond {
		t.Errorf("QueryDuration(warmup) = %v, %v", d, err)
	}
	if d, err := QueryDuration(req, "absent", 5*time.Second); err != nil || d != 5*time.Second {
		t.Errorf("QueryDuration(absent) = %v, %v", d, err)
	}
	if _, err := QueryDuration(req, "neg", 0); err == nil {
		t.Error("QueryDuration(-1s) expected error")
	}
	if _, err := QueryDuration(req, "junk", 0); err == nil {
		t.Error("QueryDuration(soon) expected error")
	}
}
