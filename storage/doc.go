// Package storage defines the key-value contract that key material is persisted through.
//
// # Contract
//
// An [Adapter] stores opaque blobs under string keys and lists keys by prefix one page at
// a time. A page may hold fewer entries than requested, including none, while still
// returning a cursor; callers keep paging until [ListResult.Cursor] is empty.
//
// # Architecture boundaries
//
// This package owns the interface and its sentinel errors only. Concrete backends live in
// storage/memory and storage/redis. Nothing here knows about keys, JWKs, or tokens.
package storage
