// Package httpclient provides the shared deadline-bounded HTTP client used
// by the cluster driver and by the inference replica's outbound calls (the
// control-plane client, the model engine, and enterprise search's
// dependency and guardrail clients). The synthetic-data LLM completer uses
// the provider SDK's own client instead.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// New builds an *http.Client with conservative, explicit timeouts — no
// component is allowed to block indefinitely on a remote call.
func New(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
