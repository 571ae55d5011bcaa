// Package audit implements async event delivery for security-relevant
// authentication operations.
//
// # Components
//
//   - [Sink] — interface for event consumers (channel, JSON writer, Redis
//     stream, zap logger, no-op).
//   - [Dispatcher] — buffered async relay; never blocks the emitting flow
//     when configured to drop on overflow.
//   - [Event] — structured record with timestamp, type, user, email, IP,
//     outcome, and metadata.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. Deciding which events to
// emit, and with what payload, is the engine's job. Events never carry
// codes, tokens, or password material.
package audit
