// Package kv defines the TTL-capable key-value capability consumed by the
// challenge, revocation, and teardown components, plus two implementations:
// [RedisStore] for production and [MemoryStore] for single-process use and
// clock-controlled tests.
//
// # Contract
//
// Every write carries a positive TTL; the capability never creates keys that
// live forever. Readers must not rely on expiry having happened: TTL removal is
// a liveness optimization, and callers re-check their own absolute deadlines.
//
// CompareAndSwap and CompareAndDelete are the only read-modify-write
// primitives. They compare raw bytes and are atomic per key.
//
// # What this package must NOT do
//
//   - Interpret values. Encoding belongs to the owning component.
//   - Retry failed operations. Retry policy belongs to the caller.
package kv
