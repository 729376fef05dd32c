package authn

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestWithContext_FromContext_RoundTrip(t *testing.T) {
	want := Identity{UserID: uuid.New(), Role: "admin", IsAdmin: true}
	ctx := WithContext(context.Background(), want)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected FromContext to find the identity")
	}
	if got != want {
		t.Errorf("FromContext() = %+v, want %+v", got, want)
	}
}

func TestFromContext_AbsentReturnsFalse(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected FromContext to report false for a bare context")
	}
}
