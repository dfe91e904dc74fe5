// Package testutil contains helpers used across tests to reduce boilerplate
// when driving a dispatcher: an in-memory recording Host and small
// assertions on completion reports. These helpers are intentionally minimal
// and avoid adding third‑party dependencies. They are not intended for
// production usage.
package testutil
