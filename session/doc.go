// Package session clears transient per-principal state on logout.
//
// A [Teardown] expands each configured key pattern with the principal id
// and contact identifier, lists matching keys through kv.Store, and deletes
// them. Failures are collected per pattern in a [Report] and logged; one
// failing pattern never stops the others.
package session
