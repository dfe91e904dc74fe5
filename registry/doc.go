// Package registry resolves method identifiers to callables.
//
// Only explicitly opted-in methods are invokable across the boundary. A
// module opts methods in either by implementing Exporter, which names the Go
// methods to expose (optionally under an alternate identifier), or through
// Registry.Register for plain functions. The identifier → method map of a
// module is built once, at its first use, and cached for the lifetime of the
// registry; reflection happens only during that build. Register a module's
// functions before the module is first resolved.
//
// Signature rules for invokable callables:
//
//	func([ctx context.Context,] params...) [(result)] [(error)]
//
// Parameters are decoded from JSON, or bound from a handle when declared as
// *core.Ref[T]. A *core.Future result marks the method as asynchronous.
package registry
