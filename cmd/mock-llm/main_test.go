package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFixtures_BaseOnly(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-god.json", `{"name":"Thalor","domain":"storms"}`)
	writeFixture(t, dir, "mock-settlement.json", `{"name":"Varn"}`)

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}

	if len(fixtures) != 2 {
		t.Fatalf("expected 2 models, got %d", len(fixtures))
	}
	for model, seq := range fixtures {
		if len(seq) != 1 {
			t.Errorf("model %q: expected 1 fixture, got %d", model, len(seq))
		}
	}
}

func TestLoadFixtures_Sequential(t *testing.T) {
	dir := t.TempDir()

	// Numbered drafts: invalid first, corrected second, base fallback.
	writeFixture(t, dir, "mock-god.1.json", `{"name":"Thalor","power_level":99}`)
	writeFixture(t, dir, "mock-god.2.json", `{"name":"Thalor","power_level":8,"fix":"corrected"}`)
	writeFixture(t, dir, "mock-god.json", `{"name":"Thalor","power_level":8,"fix":"fallback"}`)

	writeFixture(t, dir, "mock-settlement.json", `{"name":"Varn"}`)

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}

	godSeq := fixtures["mock-god"]
	if len(godSeq) != 3 {
		t.Fatalf("mock-god: expected 3 fixtures, got %d", len(godSeq))
	}
	if !strings.Contains(godSeq[0], `"power_level":99`) {
		t.Errorf("fixture[0] should be the invalid draft, got: %s", godSeq[0])
	}
	if !strings.Contains(godSeq[1], "corrected") {
		t.Errorf("fixture[1] should be the corrected draft, got: %s", godSeq[1])
	}
	if !strings.Contains(godSeq[2], "fallback") {
		t.Errorf("fixture[2] should be the base fallback, got: %s", godSeq[2])
	}

	if len(fixtures["mock-settlement"]) != 1 {
		t.Fatalf("mock-settlement: expected 1 fixture, got %d", len(fixtures["mock-settlement"]))
	}
}

func TestLoadFixtures_NumberedOnly(t *testing.T) {
	dir := t.TempDir()

	writeFixture(t, dir, "mock-god.1.json", `{"attempt":1}`)
	writeFixture(t, dir, "mock-god.2.json", `{"attempt":2}`)

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}

	if len(fixtures["mock-god"]) != 2 {
		t.Fatalf("expected 2 fixtures, got %d", len(fixtures["mock-god"]))
	}
}

func TestLoadFixtures_EmptyDir(t *testing.T) {
	dir := t.TempDir()

	if _, err := loadFixtures(dir); err == nil {
		t.Fatal("expected error for empty directory")
	}
}

func TestLoadFixtures_RejectsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-god.json", `{"name": "Thalor"`)

	if _, err := loadFixtures(dir); err == nil {
		t.Fatal("expected error for invalid JSON fixture")
	}
}

func TestSequentialFixtureSelection(t *testing.T) {
	fixtures := map[string][]string{
		"mock-god": {
			`{"name":"Thalor","power_level":99}`,
			`{"name":"Thalor","power_level":8}`,
		},
		"mock-settlement": {
			`{"name":"Varn"}`,
		},
	}

	s := newServer(fixtures)

	// First call returns the invalid draft.
	resp1 := doCompletion(t, s, "mock-god")
	if !strings.Contains(resp1, `"power_level":99`) {
		t.Errorf("call 1: expected invalid draft, got: %s", resp1)
	}

	// Second call returns the corrected draft.
	resp2 := doCompletion(t, s, "mock-god")
	if !strings.Contains(resp2, `"power_level":8`) {
		t.Errorf("call 2: expected corrected draft, got: %s", resp2)
	}

	// Calls past the sequence repeat the last fixture.
	resp3 := doCompletion(t, s, "mock-god")
	if !strings.Contains(resp3, `"power_level":8`) {
		t.Errorf("call 3: expected repeated last fixture, got: %s", resp3)
	}

	// Other models have independent counters.
	settlementResp := doCompletion(t, s, "mock-settlement")
	if !strings.Contains(settlementResp, "Varn") {
		t.Errorf("settlement: expected Varn, got: %s", settlementResp)
	}
}

func TestUnknownModel(t *testing.T) {
	s := newServer(map[string][]string{
		"mock-god": {`{"name":"Thalor"}`},
	})

	body := strings.NewReader(`{"model":"mock-unknown","messages":[{"role":"user","content":"test"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	w := httptest.NewRecorder()
	s.handleChatCompletions(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown model, got %d", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	fixtures := map[string][]string{
		"mock-god":        {`{"name":"Thalor"}`},
		"mock-settlement": {`{"name":"Varn"}`},
	}

	s := newServer(fixtures)

	doCompletion(t, s, "mock-god")
	doCompletion(t, s, "mock-god")
	doCompletion(t, s, "mock-settlement")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.handleStats(w, req)

	var stats struct {
		TotalCalls   int64          `json:"total_calls"`
		CallsByModel map[string]int `json:"calls_by_model"`
	}
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}

	if stats.TotalCalls != 3 {
		t.Errorf("total_calls: expected 3, got %d", stats.TotalCalls)
	}
	if stats.CallsByModel["mock-god"] != 2 {
		t.Errorf("mock-god calls: expected 2, got %d", stats.CallsByModel["mock-god"])
	}
	if stats.CallsByModel["mock-settlement"] != 1 {
		t.Errorf("mock-settlement calls: expected 1, got %d", stats.CallsByModel["mock-settlement"])
	}
}

func TestRequestsEndpointCapturesMessages(t *testing.T) {
	s := newServer(map[string][]string{
		"mock-god": {`{"name":"Thalor"}`},
	})

	body := strings.NewReader(`{
		"model": "mock-god",
		"messages": [
			{"role": "system", "content": "RETRY ATTEMPT 1/3"},
			{"role": "user", "content": "Generate a storm god"}
		]
	}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	w := httptest.NewRecorder()
	s.handleChatCompletions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	reqReq := httptest.NewRequest(http.MethodGet, "/requests?model=mock-god", nil)
	reqW := httptest.NewRecorder()
	s.handleRequests(reqW, reqReq)

	var captured struct {
		RequestsByModel map[string][]capturedRequest `json:"requests_by_model"`
	}
	if err := json.NewDecoder(reqW.Body).Decode(&captured); err != nil {
		t.Fatalf("decode requests: %v", err)
	}

	reqs := captured.RequestsByModel["mock-god"]
	if len(reqs) != 1 {
		t.Fatalf("expected 1 captured request, got %d", len(reqs))
	}
	if len(reqs[0].Messages) != 2 {
		t.Fatalf("expected 2 captured messages, got %d", len(reqs[0].Messages))
	}
	if !strings.Contains(reqs[0].Messages[0].Content, "RETRY ATTEMPT") {
		t.Errorf("expected retry notice in captured system message, got %q", reqs[0].Messages[0].Content)
	}
	if reqs[0].CallIndex != 1 {
		t.Errorf("call_index: expected 1, got %d", reqs[0].CallIndex)
	}
}

func TestNumberedFileRegex(t *testing.T) {
	tests := []struct {
		filename string
		wantBase string
		wantNum  string
		match    bool
	}{
		{"mock-god.1.json", "mock-god", "1", true},
		{"mock-god.2.json", "mock-god", "2", true},
		{"mock-god.10.json", "mock-god", "10", true},
		{"mock-god.json", "", "", false},
		{"mock-settlement.json", "", "", false},
	}

	for _, tt := range tests {
		matches := numberedFileRe.FindStringSubmatch(tt.filename)
		if tt.match {
			if matches == nil {
				t.Errorf("%s: expected match, got nil", tt.filename)
				continue
			}
			if matches[1] != tt.wantBase {
				t.Errorf("%s: base=%q, want %q", tt.filename, matches[1], tt.wantBase)
			}
			if matches[2] != tt.wantNum {
				t.Errorf("%s: num=%q, want %q", tt.filename, matches[2], tt.wantNum)
			}
		} else if matches != nil {
			t.Errorf("%s: expected no match, got %v", tt.filename, matches)
		}
	}
}

// --- helpers ---

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func doCompletion(t *testing.T, s *server, model string) string {
	t.Helper()
	body := strings.NewReader(`{"model":"` + model + `","messages":[{"role":"user","content":"test"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	w := httptest.NewRecorder()
	s.handleChatCompletions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("model %s: status %d, body: %s", model, w.Code, w.Body.String())
	}

	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Choices) == 0 {
		t.Fatalf("no choices in response")
	}

	return resp.Choices[0].Message.Content
}
