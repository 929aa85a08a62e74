// Package property implements the per-object property cache and its commit/refresh protocol.
//
// A Store holds the cached values of one remote object. Get and Set only touch the cache; Commit
// pushes cached values to the remote service and Refresh pulls live values into the cache.
//
// Permissions are enforced locally and fail closed: an operation the property's permission set
// does not allow returns ErrPermissionDenied before anything is sent to the remote service.
//
// Child stores compose a parent store instead of copying it. A child declares the subset of the
// parent's properties it exposes; those names are read, set, committed and refreshed through
// the parent, so both objects always see the same value.
package property
