package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestChainFirstStrategyWins(t *testing.T) {
	var primarySent, backupSent bool
	primary := Func(func(context.Context, Message) error {
		primarySent = true
		return nil
	})
	backup := Func(func(context.Context, Message) error {
		backupSent = true
		return nil
	})

	chain := NewChain(0, nil, primary, backup)
	if err := chain.Send(context.Background(), Message{To: "a@x.com"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !primarySent || backupSent {
		t.Fatalf("expected only primary to send: primary=%v backup=%v", primarySent, backupSent)
	}
}

func TestChainFallsThroughOnFailure(t *testing.T) {
	primary := Func(func(context.Context, Message) error {
		return errors.New("smtp down")
	})
	var delivered Message
	backup := Func(func(_ context.Context, msg Message) error {
		delivered = msg
		return nil
	})

	chain := NewChain(0, nil, primary, backup)
	if err := chain.Send(context.Background(), Message{To: "a@x.com", Subject: "s"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if delivered.To != "a@x.com" || delivered.Subject != "s" {
		t.Fatalf("backup got wrong message: %+v", delivered)
	}
}

func TestChainAllFail(t *testing.T) {
	failing := Func(func(context.Context, Message) error {
		return errors.New("provider rejected")
	})

	chain := NewChain(0, nil, failing, failing)
	err := chain.Send(context.Background(), Message{To: "a@x.com"})
	if !errors.Is(err, ErrAllStrategiesFailed) {
		t.Fatalf("expected ErrAllStrategiesFailed, got %v", err)
	}
}

func TestChainEmpty(t *testing.T) {
	chain := NewChain(0, nil)
	if err := chain.Send(context.Background(), Message{To: "a@x.com"}); !errors.Is(err, ErrAllStrategiesFailed) {
		t.Fatalf("expected ErrAllStrategiesFailed, got %v", err)
	}
}

func TestChainHonorsCanceledContext(t *testing.T) {
	failing := Func(func(context.Context, Message) error {
		return errors.New("provider rejected")
	})
	var backupCalled bool
	backup := Func(func(context.Context, Message) error {
		backupCalled = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chain := NewChain(0, nil, failing, backup)
	if err := chain.Send(ctx, Message{To: "a@x.com"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if backupCalled {
		t.Fatal("chain must stop once the caller's context is done")
	}
}

func TestChainPerAttemptTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, _ Message) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	var delivered bool
	fast := Func(func(context.Context, Message) error {
		delivered = true
		return nil
	})

	chain := NewChain(20*time.Millisecond, nil, slow, fast)
	if err := chain.Send(context.Background(), Message{To: "a@x.com"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !delivered {
		t.Fatal("a hung strategy must not block the next one")
	}
}
