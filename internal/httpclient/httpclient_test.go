package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestNew_SetsConfiguredTimeout(t *testing.T) {
	c := New(7 * time.Second)
	if c.Timeout != 7*time.Second {
		t.Errorf("Timeout = %v, want %v", c.Timeout, 7*time.Second)
	}
}

func TestNew_TransportIsBoundedNotDefault(t *testing.T) {
	c := New(time.Second)
	tr, ok := c.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", c.Transport)
	}
	if tr.MaxIdleConnsPerHost != 10 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 10", tr.MaxIdleConnsPerHost)
	}
	if tr.IdleConnTimeout != 90*time.Second {
		t.Errorf("IdleConnTimeout = %v, want 90s", tr.IdleConnTimeout)
	}
}
