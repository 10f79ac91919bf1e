package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/funnyzak/reqs/internal/config"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func testConfig() *config.Config {
	return &config.Config{
		Network: config.NetworkConfig{Timeout: 5},
		Output:  config.OutputConfig{Format: config.FormatJSONL},
		Log:     config.LogConfig{Level: "error"},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("Expected one content block, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("Expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func decodeRecords(t *testing.T, text string) []map[string]any {
	t.Helper()
	if text == "" {
		return nil
	}
	var records []map[string]any
	for _, line := range strings.Split(text, "\n") {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("Result line is not JSON: %q (%v)", line, err)
		}
		records = append(records, record)
	}
	return records
}

func TestSendRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	s := New(testConfig(), "test", nil)
	res, err := s.sendRequests(context.Background(), sendRequestsArgs{
		Requests: []string{srv.URL, "POST " + srv.URL + " a=1"},
	})
	if err != nil {
		t.Fatalf("sendRequests failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("Unexpected tool error: %s", resultText(t, res))
	}

	records := decodeRecords(t, resultText(t, res))
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	methods := map[string]bool{}
	for _, record := range records {
		methods[record["method"].(string)] = true
		if record["status_code"].(float64) != 200 {
			t.Errorf("Expected status 200, got %v", record["status_code"])
		}
		if record["content_length"].(float64) != 5 {
			t.Errorf("Expected content_length 5, got %v", record["content_length"])
		}
	}
	if !methods["GET"] || !methods["POST"] {
		t.Errorf("Expected one GET and one POST record, got %v", methods)
	}
}

func TestSendRequestsFollowsRedirectsByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// The launch config says don't follow; MCP mode flips the default.
	cfg := testConfig()
	cfg.HTTP.FollowRedirect = false
	s := New(cfg, "test", nil)

	res, err := s.sendRequests(context.Background(), sendRequestsArgs{
		Requests: []string{srv.URL + "/start"},
	})
	if err != nil {
		t.Fatalf("sendRequests failed: %v", err)
	}
	records := decodeRecords(t, resultText(t, res))
	if len(records) != 1 || records[0]["status_code"].(float64) != 200 {
		t.Fatalf("Expected redirect followed to 200, got %v", records)
	}

	// Explicit opt-out surfaces the 302.
	noFollow := false
	res, err = s.sendRequests(context.Background(), sendRequestsArgs{
		Requests:       []string{srv.URL + "/start"},
		FollowRedirect: &noFollow,
	})
	if err != nil {
		t.Fatalf("sendRequests failed: %v", err)
	}
	records = decodeRecords(t, resultText(t, res))
	if len(records) != 1 || records[0]["status_code"].(float64) != 302 {
		t.Fatalf("Expected 302 with follow_redirect=false, got %v", records)
	}
}

func TestSendRequestsFilterStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(testConfig(), "test", nil)
	res, err := s.sendRequests(context.Background(), sendRequestsArgs{
		Requests:     []string{srv.URL},
		FilterStatus: []int{200, 404},
	})
	if err != nil {
		t.Fatalf("sendRequests failed: %v", err)
	}
	if text := resultText(t, res); text != "" {
		t.Errorf("Expected a filtered-out 500 to produce no records, got %q", text)
	}
}

func TestSendRequestsValidation(t *testing.T) {
	s := New(testConfig(), "test", nil)

	res, err := s.sendRequests(context.Background(), sendRequestsArgs{})
	if err != nil {
		t.Fatalf("sendRequests failed: %v", err)
	}
	if !res.IsError {
		t.Error("Expected IsError for missing requests")
	}

	res, err = s.sendRequests(context.Background(), sendRequestsArgs{
		Requests:    []string{"https://example.com"},
		FilterRegex: "[unclosed",
	})
	if err != nil {
		t.Fatalf("sendRequests failed: %v", err)
	}
	if !res.IsError {
		t.Error("Expected IsError for invalid filter regex")
	}
}

func TestFuzzRequest(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("X"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")
	raw := "GET /a HTTP/1.1\nHost: " + host + "\nX: FUZZ"

	s := New(testConfig(), "test", nil)
	// One word at a time keeps the header capture free of data races.
	for _, word := range []string{"v1", "v2"} {
		res, err := s.fuzzRequest(context.Background(), fuzzRequestArgs{
			RawRequest: raw,
			Wordlist:   []string{word},
		})
		if err != nil {
			t.Fatalf("fuzzRequest failed: %v", err)
		}
		if res.IsError {
			t.Fatalf("Unexpected tool error: %s", resultText(t, res))
		}
		records := decodeRecords(t, resultText(t, res))
		if len(records) != 1 {
			t.Fatalf("Expected one record, got %d", len(records))
		}
		if records[0]["word"] != word {
			t.Errorf("Expected word %q on record, got %v", word, records[0]["word"])
		}
	}

	if len(seen) != 2 || seen[0] != "v1" || seen[1] != "v2" {
		t.Errorf("Expected substituted header values v1,v2 sent, server saw %v", seen)
	}
}

func TestFuzzRequestValidation(t *testing.T) {
	s := New(testConfig(), "test", nil)

	res, err := s.fuzzRequest(context.Background(), fuzzRequestArgs{Wordlist: []string{"a"}})
	if err != nil {
		t.Fatalf("fuzzRequest failed: %v", err)
	}
	if !res.IsError {
		t.Error("Expected IsError for missing raw_request")
	}

	res, err = s.fuzzRequest(context.Background(), fuzzRequestArgs{RawRequest: "GET /a HTTP/1.1\nHost: h.test"})
	if err != nil {
		t.Fatalf("fuzzRequest failed: %v", err)
	}
	if !res.IsError {
		t.Error("Expected IsError for empty wordlist")
	}

	res, err = s.fuzzRequest(context.Background(), fuzzRequestArgs{
		RawRequest: "GET",
		Wordlist:   []string{"a"},
	})
	if err != nil {
		t.Fatalf("fuzzRequest failed: %v", err)
	}
	if !res.IsError {
		t.Error("Expected IsError for malformed template")
	}
}
