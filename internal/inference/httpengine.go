package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/bazaarml/controlplane/internal/apperr"
)

// HTTPEngine implements Engine by proxying predict requests to the
// model-serving process the deploy image bundles alongside this runtime,
// reached over loopback. The control plane never loads a model itself;
// this is the seam between the generic runtime and whatever serving
// layer a given model type actually uses.
type HTTPEngine struct {
	addr   string
	client *http.Client
}

func NewHTTPEngine(addr string, client *http.Client) *HTTPEngine {
	return &HTTPEngine{addr: addr, client: client}
}

func (e *HTTPEngine) Predict(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return e.Invoke(ctx, http.MethodPost, "/predict", payload)
}

// Invoke forwards an opaque model-type-specific operation (NDB's
// search/insert/sources/chat/…, NLP's insert_sample/stats/…) straight
// through to the bundled serving process at path, unmodified. The runtime
// never interprets these payloads itself; it only decides, per route,
// whether an update-log entry should also be recorded alongside the
// forward.
func (e *HTTPEngine) Invoke(ctx context.Context, method, path string, payload json.RawMessage) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.addr+path, body)
	if err != nil {
		return nil, apperr.Internal(err, "building engine request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperr.Unavailable("model engine unreachable: %v", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Internal(err, "reading engine response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Unavailable("model engine rejected %s %s: %s", method, path, string(out))
	}

	return json.RawMessage(out), nil
}

var _ Engine = (*HTTPEngine)(nil)
