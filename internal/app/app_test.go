package app

import (
	"strings"
	"testing"
	"time"
)

func TestParseDuration_Valid(t *testing.T) {
	d, err := parseDuration("30s", "test_field")
	if err != nil {
		t.Fatalf("parseDuration() error = %v", err)
	}
	if d != 30*time.Second {
		t.Errorf("parseDuration() = %v, want 30s", d)
	}
}

func TestParseDuration_InvalidWrapsFieldName(t *testing.T) {
	_, err := parseDuration("not-a-duration", "sweeper_interval")
	if err == nil {
		t.Fatal("expected an error for an invalid duration string")
	}
	if got := err.Error(); !strings.Contains(got, "sweeper_interval") {
		t.Errorf("error %q does not mention field name", got)
	}
}
