// Package entsearch implements C7's enterprise-search composition: a
// request fans out to a dependency NDB deployment's /search, and — when a
// guardrail model is configured for the composing deployment — the query
// text is redacted before it leaves this process and the results are
// unredacted before they are returned to the caller.
package entsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/bazaarml/controlplane/internal/apperr"
	"github.com/bazaarml/controlplane/internal/redact"
)

// Guardrail queries a token-classification model's /predict endpoint and
// uses its tags to redact PII out of text before it is forwarded
// elsewhere, reversing the substitution afterward with the caller's own
// redact.LabelMap.
type Guardrail struct {
	endpoint string
	client   *http.Client
}

// NewGuardrail builds a Guardrail against the given deployment's base URL
// (e.g. "https://runtime.internal/<guardrail-model-id>").
func NewGuardrail(endpoint string, client *http.Client) *Guardrail {
	return &Guardrail{endpoint: endpoint, client: client}
}

type tokenTagPrediction struct {
	Tokens        []string   `json:"tokens"`
	PredictedTags [][]string `json:"predicted_tags"`
}

// queryPIIModel asks the guardrail deployment to tag every token of text
// with its predicted PII category, taking only the top-ranked tag per
// token (top_k=1).
func (g *Guardrail) queryPIIModel(ctx context.Context, text, accessToken string) (tokenTagPrediction, error) {
	payload, err := json.Marshal(map[string]any{"text": text, "top_k": 1})
	if err != nil {
		return tokenTagPrediction{}, apperr.Internal(err, "encoding guardrail request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/predict", bytes.NewReader(payload))
	if err != nil {
		return tokenTagPrediction{}, apperr.Internal(err, "building guardrail request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "controlplane inference runtime")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return tokenTagPrediction{}, apperr.Unavailable("guardrail model unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return tokenTagPrediction{}, apperr.Unavailable("unable to access guardrail model: %s", string(body))
	}

	var out struct {
		Data tokenTagPrediction `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return tokenTagPrediction{}, apperr.Internal(err, "decoding guardrail response")
	}
	return out.Data, nil
}

// RedactPII tags text, merges adjacent same-tag tokens into spans, and
// replaces every non-"O" span with a stable placeholder drawn from
// labelMap. The caller owns labelMap's lifetime and must pass the same
// instance (or its Entities()) to redact.Unredact to recover the
// original text.
func (g *Guardrail) RedactPII(ctx context.Context, text, accessToken string, labelMap *redact.LabelMap) (string, error) {
	pred, err := g.queryPIIModel(ctx, text, accessToken)
	if err != nil {
		return "", err
	}

	flatTags := make([]string, len(pred.PredictedTags))
	for i, tags := range pred.PredictedTags {
		if len(tags) > 0 {
			flatTags[i] = tags[0]
		}
	}

	entities, tags := redact.MergeTags(pred.Tokens, flatTags)

	redacted := make([]string, len(entities))
	for i, entity := range entities {
		if tags[i] != "O" {
			redacted[i] = labelMap.GetLabel(tags[i], entity)
		} else {
			redacted[i] = entity
		}
	}

	return joinSpaced(redacted), nil
}

func joinSpaced(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// SearchRequest is the query payload accepted by the composed
// enterprise-search endpoint.
type SearchRequest struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k,omitempty"`
}

// SearchResult mirrors the reference/text pairs an NDB /search endpoint
// returns.
type SearchResult struct {
	Reference string  `json:"reference"`
	Text      string  `json:"text"`
	Source    string  `json:"source,omitempty"`
	Score     float64 `json:"score,omitempty"`
}

// Composer fans a query out to a dependency NDB deployment's /search,
// optionally redacting the query first and unredacting every result's
// text afterward.
type Composer struct {
	dependencyEndpoint string
	guardrail          *Guardrail
	client             *http.Client
}

func NewComposer(dependencyEndpoint string, guardrail *Guardrail, client *http.Client) *Composer {
	return &Composer{dependencyEndpoint: dependencyEndpoint, guardrail: guardrail, client: client}
}

func (c *Composer) Search(ctx context.Context, req SearchRequest, accessToken string) ([]SearchResult, []redact.PiiEntity, error) {
	var labelMap *redact.LabelMap
	query := req.Query

	if c.guardrail != nil {
		labelMap = redact.NewLabelMap()
		redacted, err := c.guardrail.RedactPII(ctx, query, accessToken, labelMap)
		if err != nil {
			return nil, nil, err
		}
		query = redacted
	}

	results, err := c.querySearch(ctx, SearchRequest{Query: query, TopK: req.TopK}, accessToken)
	if err != nil {
		return nil, nil, err
	}

	if labelMap != nil {
		entities := labelMap.Entities()
		for i := range results {
			results[i].Text = redact.Unredact(results[i].Text, entities)
		}
		return results, entities, nil
	}

	return results, nil, nil
}

func (c *Composer) querySearch(ctx context.Context, req SearchRequest, accessToken string) ([]SearchResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Internal(err, "encoding search request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.dependencyEndpoint+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Internal(err, "building search request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apperr.Unavailable("dependency deployment unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperr.Unavailable("dependency deployment rejected search: %s", string(body))
	}

	var out struct {
		Data []SearchResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Internal(err, "decoding search response")
	}
	return out.Data, nil
}
