package notify

import "context"

// Func adapts a plain function to the [Notifier] interface. Handy for
// tests and for wiring bespoke providers without a named type.
type Func func(ctx context.Context, msg Message) error

func (Func) Name() string { return "func" }

func (f Func) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
