package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchAll_OrderAndValues(t *testing.T) {
	f := New(func(ctx context.Context, k int) (int, error) {
		// Later keys finish first
		time.Sleep(time.Duration(10-k) * time.Millisecond)
		return k * k, nil
	}, Config{MaxConcurrency: 4})

	keys := []int{1, 2, 3, 4, 5, 6}
	results, err := f.FetchAll(context.Background(), keys)
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	for i, r := range results {
		if r.Key != keys[i] {
			t.Errorf("results[%d].Key = %d, want %d", i, r.Key, keys[i])
		}
		if r.Value != keys[i]*keys[i] {
			t.Errorf("results[%d].Value = %d, want %d", i, r.Value, keys[i]*keys[i])
		}
	}
}

func TestFetchAll_RespectsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32

	f := New(func(ctx context.Context, k int) (struct{}, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}, nil
	}, Config{MaxConcurrency: 2})

	if _, err := f.FetchAll(context.Background(), make([]int, 10)); err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestFetchAll_PartialFailure(t *testing.T) {
	boom := errors.New("boom")
	f := New(func(ctx context.Context, k int) (int, error) {
		if k%2 == 0 {
			return 0, boom
		}
		return k, nil
	}, DefaultConfig())

	results, err := f.FetchAll(context.Background(), []int{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("FetchAll() error = %v, want nil for partial failure", err)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("failed = %d, want 2", failed)
	}
}

func TestFetchAll_AllFailed(t *testing.T) {
	boom := errors.New("boom")
	f := New(func(ctx context.Context, k int) (int, error) {
		return 0, boom
	}, DefaultConfig())

	_, err := f.FetchAll(context.Background(), []int{1, 2})
	if !errors.Is(err, boom) {
		t.Errorf("FetchAll() error = %v, want wrapping boom", err)
	}
}

func TestFetchAll_Empty(t *testing.T) {
	f := New(func(ctx context.Context, k int) (int, error) { return k, nil }, DefaultConfig())

	results, err := f.FetchAll(context.Background(), nil)
	if err != nil || len(results) != 0 {
		t.Errorf("FetchAll(nil) = %v, %v; want empty, nil", results, err)
	}
}

func TestFetchAll_PerItemTimeout(t *testing.T) {
	f := New(func(ctx context.Context, k int) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return k, nil
		}
	}, Config{MaxConcurrency: 2, Timeout: 10 * time.Millisecond})

	_, err := f.FetchAll(context.Background(), []int{1, 2})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("FetchAll() error = %v, want DeadlineExceeded", err)
	}
}

func TestFetchAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(func(ctx context.Context, k int) (int, error) { return k, nil }, DefaultConfig())

	if _, err := f.FetchAll(ctx, []int{1, 2, 3}); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchAll() error = %v, want context.Canceled", err)
	}
}
