package permcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestCache_CachesSuccessfulFetch(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, token string) (Permissions, error) {
		atomic.AddInt32(&calls, 1)
		return Permissions{Read: true}, nil
	}
	c := New(time.Minute, fetch)

	for i := 0; i < 5; i++ {
		ok, err := c.CheckRead(context.Background(), "tok")
		if err != nil || !ok {
			t.Fatalf("CheckRead() = %v, %v", ok, err)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch called %d times, want 1 (should be cached after first lookup)", got)
	}
}

func TestCache_RefetchesAfterExpiry(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, token string) (Permissions, error) {
		atomic.AddInt32(&calls, 1)
		return Permissions{Write: true}, nil
	}
	c := New(time.Millisecond, fetch)

	if _, err := c.CheckWrite(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := c.CheckWrite(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("fetch called %d times, want 2 (entry should have expired)", got)
	}
}

func TestCache_PropagatesFetchError(t *testing.T) {
	wantErr := errors.New("lookup failed")
	fetch := func(ctx context.Context, token string) (Permissions, error) {
		return Permissions{}, wantErr
	}
	c := New(time.Minute, fetch)

	_, err := c.CheckOverride(context.Background(), "tok")
	if !errors.Is(err, wantErr) {
		t.Errorf("CheckOverride() error = %v, want %v", err, wantErr)
	}
}

func TestCache_Invalidate(t *testing.T) {
	var calls int32
	fetch := func(ctx context.Context, token string) (Permissions, error) {
		atomic.AddInt32(&calls, 1)
		return Permissions{Read: true}, nil
	}
	c := New(time.Minute, fetch)

	if _, err := c.CheckRead(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	c.Invalidate("tok")
	if _, err := c.CheckRead(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("fetch called %d times after invalidate, want 2", got)
	}
}

func TestCache_DistinctTokensDoNotShareEntries(t *testing.T) {
	fetch := func(ctx context.Context, token string) (Permissions, error) {
		return Permissions{Read: token == "good"}, nil
	}
	c := New(time.Minute, fetch)

	okGood, _ := c.CheckRead(context.Background(), "good")
	okBad, _ := c.CheckRead(context.Background(), "bad")

	if !okGood || okBad {
		t.Errorf("CheckRead good=%v bad=%v, want true/false", okGood, okBad)
	}
}
