package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bazaarml/controlplane/internal/apperr"
)

// ControlPlaneClient is the runtime's narrow view of the control plane it
// was spawned by: just enough to ask "is anything still using me" and to
// report its own shutdown.
type ControlPlaneClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewControlPlaneClient(baseURL, token string, client *http.Client) *ControlPlaneClient {
	return &ControlPlaneClient{baseURL: baseURL, token: token, client: client}
}

// ActiveDeploymentCount asks the control plane how many non-terminal
// deployments the given model currently has, used by the idle timer to
// decide whether it is safe to self-terminate.
func (c *ControlPlaneClient) ActiveDeploymentCount(ctx context.Context, modelID string) (int, error) {
	url := fmt.Sprintf("%s/api/v1/lifecycle/%s/deploy/status", c.baseURL, modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, apperr.Internal(err, "building deploy-status request")
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, apperr.Unavailable("control plane unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, apperr.Unavailable("control plane rejected deploy-status check: %s", string(body))
	}

	var out struct {
		Data struct {
			ActiveCount int `json:"active_count"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, apperr.Internal(err, "decoding deploy-status response")
	}
	return out.Data.ActiveCount, nil
}

// ReportStopped notifies the control plane that this replica stopped
// itself after going idle, so the deployment row is updated without the
// control plane having to poll for it.
func (c *ControlPlaneClient) ReportStopped(ctx context.Context, deploymentID string) error {
	url := fmt.Sprintf("%s/api/v1/lifecycle/deployments/%s/update-status", c.baseURL, deploymentID)
	payload, _ := json.Marshal(map[string]string{"status": "stopped"})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return apperr.Internal(err, "building update-status request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.Unavailable("control plane unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return apperr.Unavailable("control plane rejected update-status: %s", string(body))
	}
	return nil
}

// Forward proxies an arbitrary method/path/payload to the control plane
// using this replica's own task-runner credential, for server-to-server
// calls.
func (c *ControlPlaneClient) Forward(ctx context.Context, method, path string, payload json.RawMessage) (json.RawMessage, error) {
	return c.forward(ctx, method, path, payload, "")
}

// ForwardAs proxies like Forward but with the original caller's own
// Authorization header, used for knowledge-extraction's report and
// question routes: those rows live in the control plane's own store, so
// this replica just relays the already-authenticated request rather than
// re-authorizing it as itself.
func (c *ControlPlaneClient) ForwardAs(ctx context.Context, method, path string, payload json.RawMessage, authHeader string) (json.RawMessage, error) {
	return c.forward(ctx, method, path, payload, authHeader)
}

func (c *ControlPlaneClient) forward(ctx context.Context, method, path string, payload json.RawMessage, authHeader string) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperr.Internal(err, "building control plane request")
	}
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	} else {
		c.authorize(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Unavailable("control plane unreachable: %v", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Internal(err, "reading control plane response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Unavailable("control plane rejected %s %s: %s", method, path, string(out))
	}

	return json.RawMessage(out), nil
}

func (c *ControlPlaneClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
