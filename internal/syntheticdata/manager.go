package syntheticdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bazaarml/controlplane/internal/apperr"
)

// Manager drives a model's synthetic-data generation: filling templates,
// offering both generated and user-provided samples to the reservoir
// sampler, and exporting the current reservoir to CSV under the bazaar
// directory.
type Manager struct {
	sampler   *Sampler
	completer Completer
	pool      *LLMPool
	bazaarDir string
}

func NewManager(sampler *Sampler, completer Completer, pool *LLMPool, bazaarDir string) *Manager {
	return &Manager{sampler: sampler, completer: completer, pool: pool, bazaarDir: bazaarDir}
}

// GenerateFromTemplates fills each template with fake tag values, offers
// the resulting sentence to the model's reservoir under a synthetic "GENERATED"
// tag, and returns how many were accepted.
func (m *Manager) GenerateFromTemplates(ctx context.Context, modelID uuid.UUID, templates []Template) (accepted int, err error) {
	for _, tmpl := range templates {
		text, _, err := tmpl.Fill(ctx, m.completer)
		if err != nil {
			return accepted, apperr.Internal(err, "filling synthetic data template")
		}
		ok, err := m.sampler.Offer(ctx, modelID, "GENERATED", text)
		if err != nil {
			return accepted, err
		}
		if ok {
			accepted++
		}
	}
	return accepted, nil
}

// IngestUserSample offers a user-provided sample directly to the
// reservoir under its own tag, the same path template-generated samples
// go through.
func (m *Manager) IngestUserSample(ctx context.Context, modelID uuid.UUID, tag, text string) (bool, error) {
	return m.sampler.Offer(ctx, modelID, tag, text)
}

// Export writes the model's current reservoir to a two-column CSV under
// the bazaar directory's synthetic_data tree, split into train/test files
// by the given ratio.
func (m *Manager) Export(ctx context.Context, modelID uuid.UUID, header [2]string, testRatio float64) (trainPath, testPath string, err error) {
	samples, err := m.sampler.List(ctx, modelID)
	if err != nil {
		return "", "", err
	}

	rows := make([]Row, len(samples))
	for i, s := range samples {
		rows[i] = Row{Left: s.Text, Right: s.Tag}
	}

	train, test := Split(rows, testRatio)

	dir := filepath.Join(m.bazaarDir, "synthetic_data", modelID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", apperr.Internal(err, "creating synthetic data export directory")
	}

	trainPath = filepath.Join(dir, "train.csv")
	testPath = filepath.Join(dir, "test.csv")

	if err := writeCSVFile(trainPath, header, train); err != nil {
		return "", "", err
	}
	if err := writeCSVFile(testPath, header, test); err != nil {
		return "", "", err
	}
	return trainPath, testPath, nil
}

func writeCSVFile(path string, header [2]string, rows []Row) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.Internal(err, fmt.Sprintf("creating %s", path))
	}
	defer f.Close()

	if err := WriteCSV(f, header, rows); err != nil {
		return apperr.Internal(err, fmt.Sprintf("writing %s", path))
	}
	return f.Sync()
}
