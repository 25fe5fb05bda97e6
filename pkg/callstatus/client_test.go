package callstatus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpdateStatus(t *testing.T) {
	var gotPath, gotMethod, gotAuth string
	var gotBody statusUpdate

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "tok"})

	err := c.UpdateStatus(context.Background(), "call-9", StatusCompleted, ReasonUserEnd)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	if gotMethod != http.MethodPatch {
		t.Errorf("method: got %q, want PATCH", gotMethod)
	}
	if gotPath != "/calls/call-9/status" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("authorization: got %q", gotAuth)
	}
	if gotBody.Status != StatusCompleted || gotBody.EndReason != ReasonUserEnd {
		t.Errorf("body: got %+v", gotBody)
	}
}

func TestUpdateStatusOmitsEmptyReason(t *testing.T) {
	var raw map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	if err := c.UpdateStatus(context.Background(), "call-9", StatusAccepted, ""); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, ok := raw["end_reason"]; ok {
		t.Error("empty end_reason serialized")
	}
}

func TestUpdateStatusServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})

	if err := c.UpdateStatus(context.Background(), "call-9", StatusFailed, ""); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestUpdateStatusRequiresCallID(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused.invalid"})

	if err := c.UpdateStatus(context.Background(), "", StatusAccepted, ""); err == nil {
		t.Fatal("expected error for missing call ID")
	}
}

func TestReportSwallowsErrors(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unreachable.invalid"})

	// Must not panic; the failure lands in the log.
	c.Report(context.Background(), "call-9", StatusFailed, "")
}
