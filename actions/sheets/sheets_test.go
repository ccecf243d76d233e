package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/convoflow/convoflow/runtime"
)

func newTestActions(t *testing.T, baseURL string) *Actions {
	t.Helper()
	a, err := New(Options{
		BaseURL:     baseURL,
		Timeout:     2 * time.Second,
		MaxRetries:  2,
		RetryWaitMS: 1,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a
}

func TestAppend_PostsRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/spreadsheets/feedback/rows" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if body["sheet"] != "Sheet1" {
			t.Errorf("sheet = %#v", body["sheet"])
		}
		row, _ := body["row"].([]any)
		if len(row) != 2 || row[0] != "user-1" {
			t.Errorf("row = %#v", body["row"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"row": 12.0})
	}))
	defer srv.Close()

	a := newTestActions(t, srv.URL)
	result, err := a.append(context.Background(), &AppendConfig{
		Spreadsheet: "feedback",
		Sheet:       "Sheet1",
		Row:         []any{"user-1", 5.0},
	}, &runtime.ExecContext{})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if result["status_code"] != 200 {
		t.Errorf("status_code = %#v", result["status_code"])
	}
	body, ok := result["result"].(map[string]any)
	if !ok || body["row"] != 12.0 {
		t.Errorf("result body = %#v", result["result"])
	}
}

func TestAppend_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"row": 1.0})
	}))
	defer srv.Close()

	a := newTestActions(t, srv.URL)
	result, err := a.append(context.Background(), &AppendConfig{
		Spreadsheet: "feedback",
		Sheet:       "Sheet1",
		Row:         []any{"x"},
	}, &runtime.ExecContext{})
	if err != nil {
		t.Fatalf("append should succeed after a retry: %v", err)
	}
	if result["status_code"] != 200 {
		t.Errorf("status_code = %#v", result["status_code"])
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}

func TestAppend_GivesUpAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newTestActions(t, srv.URL)
	_, err := a.append(context.Background(), &AppendConfig{
		Spreadsheet: "feedback",
		Sheet:       "Sheet1",
		Row:         []any{"x"},
	}, &runtime.ExecContext{})
	if err == nil {
		t.Fatal("persistent server error should surface as an action error")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3 (initial + 2 retries)", got)
	}
}

func TestQuery_FetchesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/spreadsheets/feedback/rows" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("sheet") != "Sheet1" || q.Get("limit") != "10" || q.Get("column") != "rating" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]any{4.0, 5.0, 3.0})
	}))
	defer srv.Close()

	a := newTestActions(t, srv.URL)
	result, err := a.query(context.Background(), &QueryConfig{
		Spreadsheet: "feedback",
		Sheet:       "Sheet1",
		Column:      "rating",
		Limit:       10,
	}, &runtime.ExecContext{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if result["count"] != 3 {
		t.Errorf("count = %#v", result["count"])
	}
	rows, ok := result["result"].([]any)
	if !ok || len(rows) != 3 || rows[1] != 5.0 {
		t.Errorf("rows = %#v", result["result"])
	}
}

func TestQuery_ErrorFailsFast(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := newTestActions(t, srv.URL)
	_, err := a.query(context.Background(), &QueryConfig{
		Spreadsheet: "feedback",
		Sheet:       "Sheet1",
		Limit:       10,
	}, &runtime.ExecContext{})
	if err == nil {
		t.Fatal("query error response should surface as an action error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("reads must not retry, server saw %d requests", got)
	}
}

func TestCreate_PostsSpreadsheet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/spreadsheets" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if body["title"] != "Feedback 2026" {
			t.Errorf("title = %#v", body["title"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": "sheet-1"})
	}))
	defer srv.Close()

	a := newTestActions(t, srv.URL)
	result, err := a.create(context.Background(), &CreateConfig{
		Title:   "Feedback 2026",
		Headers: []string{"sender", "rating"},
	}, &runtime.ExecContext{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if result["status_code"] != 201 {
		t.Errorf("status_code = %#v", result["status_code"])
	}
	body, ok := result["result"].(map[string]any)
	if !ok || body["id"] != "sheet-1" {
		t.Errorf("result body = %#v", result["result"])
	}
}
