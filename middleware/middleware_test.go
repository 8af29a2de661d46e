package middleware

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/r3dlight/godiode/protocol"
)

func testBlock(t *testing.T) protocol.Block {
	b, err := protocol.NewBlock(protocol.BlockData, protocol.ClientId(1), []byte("x"), 16)
	if err != nil {
		t.Fatalf("NewBlock failed: %v", err)
	}
	return b
}

func TestChainExecutionOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next BlockFunc) BlockFunc {
			return func(b protocol.Block) error {
				order = append(order, name+":before")
				err := next(b)
				order = append(order, name+":after")
				return err
			}
		}
	}
	step := func(b protocol.Block) error {
		order = append(order, "step")
		return nil
	}

	chained := Chain(mark("A"), mark("B"))(step)
	if err := chained(testBlock(t)); err != nil {
		t.Fatalf("chained call failed: %v", err)
	}

	want := []string{"A:before", "B:before", "step", "B:after", "A:after"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestRateLimitMiddlewareRejectsOverBurst(t *testing.T) {
	calls := 0
	step := func(b protocol.Block) error {
		calls++
		return nil
	}
	limited := RateLimitMiddleware(1, 1)(step)

	b := testBlock(t)
	if err := limited(b); err != nil {
		t.Fatalf("first call should be allowed: %v", err)
	}
	if err := limited(b); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second call should be rate limited, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected next to be called exactly once, got %d", calls)
	}
}

func TestLoggingMiddlewarePropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	step := func(b protocol.Block) error { return wantErr }
	wrapped := LoggingMiddleware(zap.NewNop())(step)

	if err := wrapped(testBlock(t)); !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}
