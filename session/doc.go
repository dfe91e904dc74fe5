// Package session manages the per-connection dispatcher contexts of a
// process. Each session owns one dispatch.Dispatcher (and with it a
// reference table and a pending-call table) and is identified by a random
// UUID. Sessions are opened when the other side connects and closed when it
// goes away; closing releases every handle the session tracked.
package session
