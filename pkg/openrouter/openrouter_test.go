package openrouter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if c := NewClient(Config{BaseURL: "https://openrouter.ai/api/v1"}); c != nil {
		t.Fatal("expected nil client without api key")
	}
	if c := NewClient(Config{APIKey: "sk-test", Timeout: time.Second, SiteName: "leadflow"}); c == nil {
		t.Fatal("expected client with api key")
	}
}

func TestNewChatModel(t *testing.T) {
	t.Parallel()

	maxTokens := 200
	cfg := &OpenRouterConfig{
		BaseURL:            "https://openrouter.ai/api/v1/",
		APIKey:             "sk-test",
		Model:              "openai/gpt-4.1-mini",
		MaxCompletionToken: &maxTokens,
		Temperature:        0.2,
		Timeout:            5 * time.Second,
	}
	m, err := cfg.New(context.Background())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if m == nil {
		t.Fatal("New() returned nil model")
	}
}

func TestHeaderTransportSetsAttribution(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	cfg := &OpenRouterConfig{SiteURL: "https://leadflow.example", SiteName: "LeadFlow"}
	client := &http.Client{Transport: headerTransport{headers: cfg.headers(), next: http.DefaultTransport}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	_ = resp.Body.Close()

	if got.Get("HTTP-Referer") != "https://leadflow.example" || got.Get("X-Title") != "LeadFlow" {
		t.Fatalf("unexpected headers: %v", got)
	}
}
