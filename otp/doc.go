// Package otp issues and verifies short-lived numeric one-time passcodes.
//
// One challenge exists per normalized identifier. Issuing replaces any
// outstanding challenge. Failed verifications increment an attempt counter
// and rewrite the record with the lifetime that remains until the original
// deadline, so repeated guessing can never push expiry further out.
//
// # Concurrency
//
// Verify reads the record and then writes back only through
// [kv.Store.CompareAndSwap] or [kv.Store.CompareAndDelete] against the bytes
// it read. A code is consumed at most once, and a wrong attempt can never
// restore a consumed or superseded record. A round that loses the race
// re-reads. Calls for different identifiers never contend.
package otp
