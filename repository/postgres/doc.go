// Package postgres implements fleetAuth.PrincipalRepository on PostgreSQL
// through pgx.
//
// The repository reads and upserts one row per principal in the principals
// table described by [Schema]. It never changes approval state on its own;
// Save writes whatever the caller hands it.
package postgres
