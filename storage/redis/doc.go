// Package redis provides a storage.Adapter and storage.Locker on top of go-redis.
//
// # Key layout
//
// Every key is written as "{prefix}:{key}" when a prefix is configured. Listing strips the
// prefix again, so callers always see the same keys they wrote.
//
// # What this package must NOT do
//
//   - Interpret stored values (blobs are opaque).
//   - Set TTLs on stored values; key records are retained until an operator removes them.
package redis
