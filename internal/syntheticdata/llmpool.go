package syntheticdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bazaarml/controlplane/internal/apperr"
)

// LLMPool fans a batch of tag-completion calls out over a bounded number
// of concurrent goroutines. A single failing call is recorded to the
// batch's traceback file rather than aborting the rest of the batch —
// one bad tag should not cost the whole batch its results.
type LLMPool struct {
	completer  Completer
	concurrent int
	tracebackDir string
}

func NewLLMPool(completer Completer, concurrency int, tracebackDir string) *LLMPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &LLMPool{completer: completer, concurrent: concurrency, tracebackDir: tracebackDir}
}

// Result pairs a requested tag with its generated value, or an error if
// the completion failed.
type Result struct {
	Tag   string
	Value string
	Err   error
}

// Complete runs one completion per tag in tags, capping in-flight calls
// at the pool's configured concurrency, and returns one Result per tag in
// the same order. Failures are written to a per-batch traceback file and
// do not cause Complete itself to return an error.
func (p *LLMPool) Complete(ctx context.Context, batchID string, tags []string) []Result {
	results := make([]Result, len(tags))

	var mu sync.Mutex
	var failures []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrent)

	for i, tag := range tags {
		i, tag := i, tag
		g.Go(func() error {
			value, err := p.completer.Complete(gctx, tag)
			results[i] = Result{Tag: tag, Value: value, Err: err}
			if err != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", tag, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		p.writeTraceback(batchID, failures)
	}

	return results
}

func (p *LLMPool) writeTraceback(batchID string, failures []string) {
	if p.tracebackDir == "" {
		return
	}
	if err := os.MkdirAll(p.tracebackDir, 0o755); err != nil {
		return
	}

	path := filepath.Join(p.tracebackDir, fmt.Sprintf("%s.traceback", batchID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	for _, line := range failures {
		fmt.Fprintf(f, "[%s] %s\n", time.Now().UTC().Format(time.RFC3339), line)
	}
}

var errBatchFailuresLogged = apperr.Internal(nil, "one or more synthetic data completions failed; see traceback file")

// ErrAnyFailed is a sentinel a caller can compare Results against to
// decide whether to surface a degraded-batch warning to the operator.
func ErrAnyFailed(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return errBatchFailuresLogged
		}
	}
	return nil
}
