// Package cluster implements C2's Driver: the thin adapter between the
// control plane and the job-scheduling backend that actually runs train,
// deploy, and inference workloads. Jobs are rendered from a fixed
// vocabulary of job-spec templates and submitted via a two-step
// parse-then-submit HTTP call, mirroring how job schedulers validate a
// spec before accepting it.
package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"

	"github.com/bazaarml/controlplane/internal/apperr"
)

// JobType is the fixed vocabulary of job specs the driver knows how to
// render. Adding a new job kind means adding a new template, not a new
// code path.
type JobType string

const (
	JobTrain     JobType = "train"
	JobRetrain   JobType = "retrain"
	JobDeploy    JobType = "deploy"
	JobUndeploy  JobType = "undeploy"
	JobSynthetic JobType = "synthetic_data"
)

var jobTemplates = map[JobType]*template.Template{
	JobTrain:     template.Must(template.New("train").Parse(trainJobTemplate)),
	JobRetrain:   template.Must(template.New("retrain").Parse(retrainJobTemplate)),
	JobDeploy:    template.Must(template.New("deploy").Parse(deployJobTemplate)),
	JobUndeploy:  template.Must(template.New("undeploy").Parse(undeployJobTemplate)),
	JobSynthetic: template.Must(template.New("synthetic").Parse(syntheticJobTemplate)),
}

// JobSpec carries the parameters substituted into a job template.
type JobSpec struct {
	JobType         JobType
	ModelID         string
	ModelIdentity   string
	ModelType       string
	DeploymentID    string
	DeploymentName  string
	Image           string
	CallbackURL     string
	TaskRunnerToken string
	MemoryHintMB    int
	Autoscale       bool
	Extra           map[string]string
}

// Driver submits and queries jobs against the cluster scheduler's HTTP API.
type Driver struct {
	endpoint string
	token    string
	client   *http.Client
}

func New(endpoint, token string, client *http.Client) *Driver {
	return &Driver{endpoint: endpoint, token: token, client: client}
}

// Submit renders spec's template, asks the scheduler to parse/validate it,
// then submits the parsed job — the same two-step flow job schedulers use
// to reject malformed specs before they ever reach a worker.
func (d *Driver) Submit(ctx context.Context, spec JobSpec) (jobID string, err error) {
	tmpl, ok := jobTemplates[spec.JobType]
	if !ok {
		return "", apperr.InvalidInput("unknown job type %q", spec.JobType)
	}

	var rendered bytes.Buffer
	if err := tmpl.Execute(&rendered, spec); err != nil {
		return "", apperr.Internal(err, "rendering job template")
	}

	parsed, err := d.parse(ctx, rendered.Bytes())
	if err != nil {
		return "", err
	}

	return d.submit(ctx, parsed)
}

func (d *Driver) parse(ctx context.Context, hcl []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/v1/jobs/parse", bytes.NewReader(hcl))
	if err != nil {
		return nil, apperr.Internal(err, "building parse request")
	}
	req.Header.Set("Content-Type", "application/json")
	d.authorize(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, apperr.Unavailable("cluster scheduler unreachable: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Unavailable("cluster rejected job spec: %s", string(body))
	}

	return json.RawMessage(body), nil
}

func (d *Driver) submit(ctx context.Context, parsedJob json.RawMessage) (string, error) {
	payload, err := json.Marshal(map[string]json.RawMessage{"Job": parsedJob})
	if err != nil {
		return "", apperr.Internal(err, "encoding submit payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/v1/jobs", bytes.NewReader(payload))
	if err != nil {
		return "", apperr.Internal(err, "building submit request")
	}
	req.Header.Set("Content-Type", "application/json")
	d.authorize(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", apperr.Unavailable("cluster scheduler unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", apperr.Unavailable("cluster rejected job submission: %s", string(body))
	}

	var out struct {
		EvalID string `json:"EvalID"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.Internal(err, "decoding submit response")
	}

	return out.EvalID, nil
}

// Exists checks whether jobID is still known to the scheduler. A 404 is
// treated as "does not exist" rather than an error — the same idempotent
// semantics apply to Stop.
func (d *Driver) Exists(ctx context.Context, jobID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/job/%s", d.endpoint, jobID), nil)
	if err != nil {
		return false, apperr.Internal(err, "building exists request")
	}
	d.authorize(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return false, apperr.Unavailable("cluster scheduler unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, apperr.Unavailable("unexpected status checking job: %d", resp.StatusCode)
	}
	return true, nil
}

// Stop deregisters jobID. A 404 is treated as success — stopping an
// already-gone job is not an error.
func (d *Driver) Stop(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/v1/job/%s", d.endpoint, jobID), nil)
	if err != nil {
		return apperr.Internal(err, "building stop request")
	}
	d.authorize(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return apperr.Unavailable("cluster scheduler unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return apperr.Unavailable("cluster rejected stop: %s", string(body))
	}
	return nil
}

func (d *Driver) authorize(req *http.Request) {
	if d.token != "" {
		req.Header.Set("X-Cluster-Token", d.token)
	}
}
