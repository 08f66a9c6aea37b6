// Package audit delivers key lifecycle and verification events to a Sink off the caller's
// goroutine.
//
// # Components
//
//   - [Sink] consumes events (channel, JSON lines writer, no-op).
//   - [Dispatcher] is a buffered relay that either drops or blocks when full.
//   - [Event] records what happened to which key or token subject.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. The Issuer decides which events to emit.
//
// # What this package must NOT do
//
//   - Filter events.
//   - Import the root package or any sibling package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
