// Package shared provides error classification used across reportd.
//
// Errors are classified by Kind (NotFound, Validation, Timeout,
// DependencyFailure, Internal, Canceled) using sentinel errors and
// errors.Is chains. Adapters mark third-party errors with MarkKind so
// callers can branch on KindOf without importing the adapter.
package shared
