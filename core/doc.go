// Package core provides the foundational types shared by every layer of the
// interop dispatcher:
//
//   - Handle / Ref[T] (opaque object references exchanged across the boundary)
//   - ModuleKey (the unit of method registration)
//   - Future / Result (single-assignment completion of asynchronous calls)
//   - Error kinds (NotFound, Arity, MalformedPayload, TypeMismatch, ...)
//
// The package has no dependencies on the rest of the module so registry,
// marshalling, reference tracking and dispatch can all build on it.
package core
