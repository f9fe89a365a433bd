package messagequeue

import "context"

// Nop is a Queue that discards publishes and never delivers. Used when the
// engine runs without a broker (file-backed mode, tests, replay CLI).
type Nop struct{}

// Publish discards the message.
func (Nop) Publish(context.Context, string, []byte) error { return nil }

// Subscribe registers nothing; the cancel function is a no-op.
func (Nop) Subscribe(context.Context, string, Handler) (func(), error) {
	return func() {}, nil
}

// Drain is a no-op.
func (Nop) Drain() error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }

// IsConnected always reports false.
func (Nop) IsConnected() bool { return false }
