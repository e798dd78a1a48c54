package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAddCommand_RequestShape(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /words": `{"id":"w-123","headword":"你好","lexical":"{}","schedule":{"interval_days":1,"ease_factor":2.5,"next_review_at":"2026-01-01T00:00:00Z","learned":false},"created_at":"2026-01-01T00:00:00Z"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/words", map[string]any{
		"headword": "你好",
		"refresh":  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var word wordView
	if err := decodeJSON(resp, &word); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if word.ID != "w-123" {
		t.Errorf("id = %q, want w-123", word.ID)
	}
	if word.Schedule.EaseFactor != 2.5 {
		t.Errorf("ease = %v, want 2.5", word.Schedule.EaseFactor)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["headword"] != "你好" {
		t.Errorf("body.headword = %v, want 你好", body["headword"])
	}
	if body["refresh"] != true {
		t.Errorf("body.refresh = %v, want true", body["refresh"])
	}
}

func TestLookupCommand_URLEncoding(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /lookup": `{"headword":"a b","definitions":[]}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/lookup?q="+url.QueryEscape("a b & c"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	reqPath := ts.requests[0].Path
	if strings.Contains(reqPath, "& c") {
		t.Errorf("query not URL-encoded: %q", reqPath)
	}
	if !strings.Contains(reqPath, "q=a+b+%26+c") {
		t.Errorf("unexpected encoded path: %q", reqPath)
	}
}

func TestLookupCommand_UnknownWord(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"unknown word: helo","type":"unknown_word"},"suggestions":["hello"]}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "test",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/lookup?q=helo")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	var body struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := decodeUnknownWord(resp, &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(body.Suggestions) != 1 || body.Suggestions[0] != "hello" {
		t.Errorf("suggestions = %v, want [hello]", body.Suggestions)
	}
}

func TestReviewFlow_RequestSequence(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /review/sessions":          `{"id":"s-1","policy":"sm2","remaining":1}`,
		"GET /review/sessions/s-1/next":  `{"done":false,"remaining":1,"card":{"id":"w-1","headword":"你好","lexical":"{}"}}`,
		"POST /review/sessions/s-1/rate": `{"status":"rated","remaining":0}`,
		"DELETE /review/sessions/s-1":    `{"status":"ended"}`,
	})

	client := ts.client()

	resp, err := client.post(ctx, "/review/sessions", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var session struct {
		ID        string `json:"id"`
		Policy    string `json:"policy"`
		Remaining int    `json:"remaining"`
	}
	if err := decodeJSON(resp, &session); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if session.Policy != "sm2" || session.Remaining != 1 {
		t.Fatalf("unexpected session: %+v", session)
	}

	resp, err = client.get(ctx, "/review/sessions/"+session.ID+"/next")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var next struct {
		Done bool      `json:"done"`
		Card *wordView `json:"card"`
	}
	if err := decodeJSON(resp, &next); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if next.Done || next.Card == nil || next.Card.ID != "w-1" {
		t.Fatalf("unexpected next: %+v", next)
	}

	resp, err = client.post(ctx, "/review/sessions/"+session.ID+"/rate", map[string]any{
		"word_id": next.Card.ID,
		"rating":  "good",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rated map[string]any
	if err := decodeJSON(resp, &rated); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if rated["status"] != "rated" {
		t.Errorf("status = %v, want rated", rated["status"])
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[2].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["rating"] != "good" {
		t.Errorf("rating sent = %v, want good", body["rating"])
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/words")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
