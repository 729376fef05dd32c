package entsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bazaarml/controlplane/internal/redact"
)

func TestComposer_Search_NoGuardrail(t *testing.T) {
	dep := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Query != "revenue by region" {
			t.Errorf("search query = %q, want passthrough unredacted query", req.Query)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []SearchResult{{Reference: "doc-1", Text: "Q3 revenue was strong", Score: 0.9}},
		})
	}))
	defer dep.Close()

	c := NewComposer(dep.URL, nil, dep.Client())
	results, entities, err := c.Search(context.Background(), SearchRequest{Query: "revenue by region"}, "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].Reference != "doc-1" {
		t.Errorf("results = %+v", results)
	}
	if entities != nil {
		t.Errorf("expected nil entities with no guardrail, got %v", entities)
	}
}

func TestComposer_Search_WithGuardrail_RedactsAndUnredacts(t *testing.T) {
	guard := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": tokenTagPrediction{
				Tokens:        []string{"John", "Smith", "called", "support"},
				PredictedTags: [][]string{{"NAME"}, {"NAME"}, {"O"}, {"O"}},
			},
		})
	}))
	defer guard.Close()

	var sawQuery string
	dep := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		json.NewDecoder(r.Body).Decode(&req)
		sawQuery = req.Query
		json.NewEncoder(w).Encode(map[string]any{
			"data": []SearchResult{{Reference: "ticket-1", Text: "contacted by " + req.Query}},
		})
	}))
	defer dep.Close()

	guardrail := NewGuardrail(guard.URL, guard.Client())
	c := NewComposer(dep.URL, guardrail, dep.Client())

	results, entities, err := c.Search(context.Background(), SearchRequest{Query: "John Smith called support"}, "tok")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if strings.Contains(sawQuery, "John Smith") {
		t.Errorf("query sent to dependency should be redacted, got %q", sawQuery)
	}
	if len(entities) == 0 {
		t.Fatal("expected redaction entities to be returned")
	}
	if !strings.Contains(results[0].Text, "John Smith") {
		t.Errorf("expected result text to be unredacted, got %q", results[0].Text)
	}
}

func TestComposer_Search_DependencyUnreachable(t *testing.T) {
	c := NewComposer("http://127.0.0.1:1", nil, http.DefaultClient)
	_, _, err := c.Search(context.Background(), SearchRequest{Query: "x"}, "")
	if err == nil {
		t.Fatal("expected error when dependency deployment is unreachable")
	}
}

func TestGuardrail_RedactPII_MergesAdjacentSpans(t *testing.T) {
	guard := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": tokenTagPrediction{
				Tokens:        []string{"Jane", "Doe", "lives", "in", "Boston"},
				PredictedTags: [][]string{{"NAME"}, {"NAME"}, {"O"}, {"O"}, {"LOCATION"}},
			},
		})
	}))
	defer guard.Close()

	g := NewGuardrail(guard.URL, guard.Client())
	lm := redact.NewLabelMap()
	redacted, err := g.RedactPII(context.Background(), "Jane Doe lives in Boston", "", lm)
	if err != nil {
		t.Fatalf("RedactPII() error = %v", err)
	}
	if strings.Contains(redacted, "Jane Doe") || strings.Contains(redacted, "Boston") {
		t.Errorf("expected PII spans to be replaced, got %q", redacted)
	}
	restored := redact.Unredact(redacted, lm.Entities())
	if restored != "Jane Doe lives in Boston" {
		t.Errorf("round trip = %q, want original text", restored)
	}
}
